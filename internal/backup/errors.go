package backup

import (
	"context"
	"fmt"

	"github.com/dupres/dupres/internal/errors"
)

// ErrCancelled is reported for files whose restore was interrupted or never
// started because the run was cancelled.
var ErrCancelled = errors.New("cancelled")

// FormatError reports a malformed manifest, index document or archive
// structure. It aborts the run when raised while reading the manifest or
// building the index.
type FormatError struct {
	Source string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("format error: %v", e.Err)
	}
	return fmt.Sprintf("format error in %v: %v", e.Source, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// NewFormatError returns a FormatError for source with a formatted cause.
func NewFormatError(source string, format string, args ...interface{}) error {
	return &FormatError{Source: source, Err: errors.Errorf(format, args...)}
}

// IndexError reports an index container that cannot be read at all.
type IndexError struct {
	Source string
	Err    error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index %v unusable: %v", e.Source, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// MissingBlockError reports a block that is not listed in the index or whose
// volume is not available locally.
type MissingBlockError struct {
	ID     ID
	Volume VolumeID
	Err    error
}

func (e *MissingBlockError) Error() string {
	switch {
	case e.Volume == "":
		return fmt.Sprintf("block %v not found in index", e.ID)
	case e.Err != nil:
		return fmt.Sprintf("block %v: volume %v unavailable: %v", e.ID, e.Volume, e.Err)
	default:
		return fmt.Sprintf("block %v not found in volume %v", e.ID, e.Volume)
	}
}

func (e *MissingBlockError) Unwrap() error { return e.Err }

// UnresolvedReferenceError reports a blocklist, or one of its entries, that
// the index does not know about.
type UnresolvedReferenceError struct {
	ID        ID
	Blocklist ID
}

func (e *UnresolvedReferenceError) Error() string {
	if e.ID == e.Blocklist {
		return fmt.Sprintf("blocklist %v not found in index", e.ID)
	}
	return fmt.Sprintf("block %v referenced by blocklist %v not found in index", e.ID, e.Blocklist.Str())
}

// VerificationError reports data whose hash differs from the requested one.
type VerificationError struct {
	Want, Got ID
	What      string
}

func (e *VerificationError) Error() string {
	what := e.What
	if what == "" {
		what = "block"
	}
	return fmt.Sprintf("%v %v failed verification, content hashes to %v", what, e.Want, e.Got)
}

// CorruptionError reports a reconstructed file whose size differs from the
// size declared in the manifest.
type CorruptionError struct {
	Path             string
	Declared, Actual int64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%v: reconstructed %d bytes, manifest declares %d", e.Path, e.Actual, e.Declared)
}

// Kind names the class of err as used in restore reports.
type Kind string

const (
	KindFormat       Kind = "format"
	KindIndex        Kind = "index"
	KindMissing      Kind = "missing-block"
	KindUnresolved   Kind = "unresolved-reference"
	KindVerification Kind = "verification"
	KindCorruption   Kind = "corruption"
	KindCancelled    Kind = "cancelled"
	KindIO           Kind = "io"
)

// KindOf classifies err.
func KindOf(err error) Kind {
	var (
		formatErr     *FormatError
		indexErr      *IndexError
		missingErr    *MissingBlockError
		unresolvedErr *UnresolvedReferenceError
		verifyErr     *VerificationError
		corruptErr    *CorruptionError
	)

	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.As(err, &formatErr):
		return KindFormat
	case errors.As(err, &indexErr):
		return KindIndex
	case errors.As(err, &missingErr):
		return KindMissing
	case errors.As(err, &unresolvedErr):
		return KindUnresolved
	case errors.As(err, &verifyErr):
		return KindVerification
	case errors.As(err, &corruptErr):
		return KindCorruption
	default:
		return KindIO
	}
}
