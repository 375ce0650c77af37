package converter

import (
	"errors"
	"fmt"
)

// Per-file failure kinds. Test with errors.Is.
var (
	ErrNotFound          = errors.New("input not found")
	ErrUnsupportedInput  = errors.New("unsupported input format")
	ErrUnsupportedOutput = errors.New("unsupported output format")
	ErrDecode            = errors.New("decode failed")
	ErrEncode            = errors.New("encode failed")
	ErrInfected          = errors.New("input failed malware scan")
	ErrTimeout           = errors.New("conversion timed out")
	ErrStopped           = errors.New("conversion stopped before start")
)

// Error ties a failure kind to the file it happened on.
type Error struct {
	Kind error
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Path, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

// Retryable reports whether a failed conversion may succeed when attempted
// again. Only encode failures qualify; a file that cannot be decoded will not
// decode on the next attempt either.
func Retryable(err error) bool {
	return errors.Is(err, ErrEncode)
}
