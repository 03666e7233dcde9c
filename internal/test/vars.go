package test

import (
	"fmt"
	"os"
	"strconv"
)

// Settings for tests, taken from the environment.
var (
	// TestCleanupTempDirs removes the directories created by TempDir.
	TestCleanupTempDirs = boolFromEnv("DUPRES_TEST_CLEANUP", true)
	// TestTempDir is the parent of the directories created by TempDir.
	TestTempDir = os.Getenv("DUPRES_TEST_TMPDIR")
)

func boolFromEnv(name string, def bool) bool {
	s, ok := os.LookupEnv(name)
	if !ok || s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid value %q for %v, using %v\n", s, name, def)
		return def
	}
	return v
}
