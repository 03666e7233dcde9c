// Package test contains assertion helpers shared by the tests of all packages.
package test

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/dupres/dupres/internal/errors"

	mrand "math/rand"
)

// Assert fails the test if the condition is false.
func Assert(tb testing.TB, condition bool, msg string, v ...interface{}) {
	tb.Helper()
	if !condition {
		_, file, line, _ := runtime.Caller(1)
		fmt.Printf("\033[31m%s:%d: "+msg+"\033[39m\n\n", append([]interface{}{filepath.Base(file), line}, v...)...)
		tb.FailNow()
	}
}

// OK fails the test if an err is not nil.
func OK(tb testing.TB, err error) {
	tb.Helper()
	if err != nil {
		_, file, line, _ := runtime.Caller(1)
		fmt.Printf("\033[31m%s:%d: unexpected error: %+v\033[39m\n\n", filepath.Base(file), line, err)
		tb.FailNow()
	}
}

// Equals fails the test if exp is not equal to act.
func Equals(tb testing.TB, exp, act interface{}, msgs ...string) {
	tb.Helper()
	if !reflect.DeepEqual(exp, act) {
		_, file, line, _ := runtime.Caller(1)
		msg := ""
		if len(msgs) > 0 {
			msg = msgs[0] + ": "
		}
		fmt.Printf("\033[31m%s:%d: %s\n\n\texp: %#v\n\n\tgot: %#v\033[39m\n\n", filepath.Base(file), line, msg, exp, act)
		tb.FailNow()
	}
}

// ErrorIs fails the test if err does not match target.
func ErrorIs(tb testing.TB, err, target error) {
	tb.Helper()
	if !errors.Is(err, target) {
		tb.Fatalf("expected error %v, got %v", target, err)
	}
}

// Random returns count bytes of pseudo-random data derived from the seed.
func Random(seed, count int) []byte {
	p := make([]byte, count)
	rnd := mrand.New(mrand.NewSource(int64(seed)))
	_, _ = rnd.Read(p)
	return p
}

// ReadFile returns the content of name and fails the test on error.
func ReadFile(tb testing.TB, name string) []byte {
	tb.Helper()
	data, err := os.ReadFile(name)
	OK(tb, err)
	return data
}

// TempDir returns a temporary directory that is removed by t.Cleanup,
// except if TestCleanupTempDirs is set to false.
func TempDir(tb testing.TB) string {
	tb.Helper()
	tempdir, err := os.MkdirTemp(TestTempDir, "dupres-test-")
	if err != nil {
		tb.Fatal(err)
	}

	tb.Cleanup(func() {
		if !TestCleanupTempDirs {
			tb.Logf("leaving temporary directory %v used for test", tempdir)
			return
		}
		RemoveAll(tb, tempdir)
	})
	return tempdir
}

// RemoveAll makes everything below path writable again and removes it.
func RemoveAll(tb testing.TB, path string) {
	err := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if fi == nil {
			return err
		}
		if fi.IsDir() {
			return os.Chmod(p, 0777)
		}
		if fi.Mode().IsRegular() {
			return os.Chmod(p, 0666)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		OK(tb, err)
	}

	err = os.RemoveAll(path)
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	OK(tb, err)
}
