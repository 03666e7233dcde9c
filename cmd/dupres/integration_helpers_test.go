package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dupres/dupres/internal/fixture"
	rtest "github.com/dupres/dupres/internal/test"
	"github.com/dupres/dupres/internal/ui/termstatus"
)

type testEnvironment struct {
	base   string
	backup string
	target string
	set    *fixture.Set
	gopts  GlobalOptions
}

// withTestEnvironment writes a small backup set and returns options which
// point to it. Output of the commands goes to buf.
func withTestEnvironment(t testing.TB, buf *bytes.Buffer) *testEnvironment {
	base := rtest.TempDir(t)
	env := &testEnvironment{
		base:   base,
		backup: filepath.Join(base, "backup"),
		target: filepath.Join(base, "restore"),
	}
	rtest.OK(t, os.MkdirAll(env.backup, 0700))

	set := fixture.New(t, env.backup)
	v1 := set.NewVolume()
	v2 := set.NewVolume()
	set.AddFolder("docs/")
	set.AddFile("docs/readme.txt", []byte("hello dupres\n"), v1)
	set.AddFile("data/big.bin", rtest.Random(23, 250000), v2)
	set.AddSymlink("docs/link", "readme.txt")
	env.set = set

	env.gopts = GlobalOptions{
		BackupDir: env.backup,
		Quiet:     true,
		stdout:    buf,
		stderr:    buf,
	}

	oldStdout, oldStderr, oldTerm := globalOptions.stdout, globalOptions.stderr, globalOptions.term
	globalOptions.stdout, globalOptions.stderr, globalOptions.term = buf, buf, nil
	oldVerbosity := globalOptions.verbosity
	globalOptions.verbosity = 0
	t.Cleanup(func() {
		globalOptions.stdout, globalOptions.stderr, globalOptions.term = oldStdout, oldStderr, oldTerm
		globalOptions.verbosity = oldVerbosity
	})

	return env
}

func testRunRestore(t testing.TB, env *testEnvironment, opts RestoreOptions) error {
	var out bytes.Buffer
	term, cancel := termstatus.Setup(&out, &out, true)
	defer cancel()
	return runRestore(context.TODO(), opts, env.gopts, term)
}
