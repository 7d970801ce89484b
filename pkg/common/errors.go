package common

import (
	"errors"
	"fmt"
)

var (
	ErrBadMagic           = errors.New("unexpected file header")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrTruncated          = errors.New("truncated input")
	ErrCorruptArchive     = errors.New("corrupt archive")
	ErrMissingMetadata    = errors.New("no metadata member found")
	ErrMissingUniverse    = errors.New("missing universe")
	ErrMalformedMetadata  = errors.New("malformed metadata")
	ErrInvalidField       = errors.New("invalid field")
	ErrMalformedFrame     = errors.New("malformed frame")
)

// MissingUniverseError is returned when metadata references a universe
// that has no member in the archive.
type MissingUniverseError struct {
	Number int
}

func (e *MissingUniverseError) Error() string {
	return fmt.Sprintf("%s %d", ErrMissingUniverse, e.Number)
}

func (e *MissingUniverseError) Is(target error) bool {
	return target == ErrMissingUniverse
}

// FieldError describes a metadata field problem. Err is either
// ErrMalformedMetadata or ErrInvalidField.
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: field %q: %s", e.Err, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// FrameError describes a sample stream problem at a 1-based line number.
// Err is either ErrMalformedFrame or ErrTruncated.
type FrameError struct {
	Line   int
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s: line %d: %s", e.Err, e.Line, e.Reason)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrBadMagic, "bad_magic"},
	{ErrUnsupportedVersion, "unsupported_version"},
	{ErrTruncated, "truncated"},
	{ErrCorruptArchive, "corrupt_archive"},
	{ErrMissingMetadata, "missing_metadata"},
	{ErrMissingUniverse, "missing_universe"},
	{ErrMalformedMetadata, "malformed_metadata"},
	{ErrInvalidField, "invalid_field"},
	{ErrMalformedFrame, "malformed_frame"},
}

// ErrorKind returns a stable name for the format error kind wrapped by err,
// or "unknown" if err is not a format error.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}
