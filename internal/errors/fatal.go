package errors

import (
	stderrors "errors"
	"fmt"
)

// fatalError is shown to the user as is, without a stack trace, before the
// program exits with an error code.
type fatalError struct {
	msg   string
	cause error
}

func (e *fatalError) Error() string { return e.msg }

func (e *fatalError) Unwrap() error { return e.cause }

// IsFatal reports whether err or an error it wraps was created by Fatal or
// Fatalf.
func IsFatal(err error) bool {
	var fe *fatalError
	return stderrors.As(err, &fe)
}

// Fatal returns a fatal error with message s.
func Fatal(s string) error {
	return Wrap(&fatalError{msg: s}, "Fatal")
}

// Fatalf returns a fatal error with a formatted message. The last error
// among args becomes the cause, so errors.Is and errors.As still see it.
func Fatalf(format string, args ...interface{}) error {
	fe := &fatalError{msg: fmt.Sprintf(format, args...)}
	for i := len(args) - 1; i >= 0 && fe.cause == nil; i-- {
		fe.cause, _ = args[i].(error)
	}
	return Wrap(fe, "Fatal")
}
