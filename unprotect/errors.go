package unprotect

import (
	"errors"
	"fmt"
)

var (
	// ErrUnprotect matches every *UnprotectError with errors.Is.
	ErrUnprotect = errors.New("unprotect failed")

	ErrEmptyBlob           = errors.New("empty protected blob")
	ErrNoService           = errors.New("no protection service")
	ErrUnsupportedPlatform = errors.New("protection service not supported on this platform")
)

// UnprotectError is returned when a blob could not be unprotected. No
// cleartext is ever returned together with it.
type UnprotectError struct {
	Op  string
	Err error
}

func (e *UnprotectError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnprotectError) Unwrap() error {
	return e.Err
}

func (e *UnprotectError) Is(target error) bool {
	return target == ErrUnprotect
}
