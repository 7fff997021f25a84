//go:build !windows

package unprotect

// DPAPI is only available on Windows. Elsewhere every call fails with
// ErrUnsupportedPlatform.
type DPAPI struct{}

// Platform returns the protection service of the running platform.
func Platform() Service {
	return DPAPI{}
}

func (DPAPI) ReverseProtect(in []byte, opts *Options) ([]byte, string, error) {
	return nil, "", ErrUnsupportedPlatform
}

func (DPAPI) Protect(cleartext []byte, description string, opts *Options) ([]byte, error) {
	return nil, ErrUnsupportedPlatform
}
