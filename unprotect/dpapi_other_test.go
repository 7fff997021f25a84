//go:build !windows

package unprotect

import (
	"errors"
	"io"
	"testing"
)

func TestPlatform_Unsupported(t *testing.T) {
	u := New(SetLog(NewDefaultLog(io.Discard)))
	got, err := u.Unprotect([]byte("hello world"))
	if got != nil {
		t.Fatalf("expected no output, got %v", got)
	}
	if !errors.Is(err, ErrUnsupportedPlatform) || !errors.Is(err, ErrUnprotect) {
		t.Fatalf("expected unsupported platform error, got %v", err)
	}
	if _, err := (DPAPI{}).Protect([]byte("x"), "", nil); !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected unsupported platform error, got %v", err)
	}
}
