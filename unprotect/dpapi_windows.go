//go:build windows

package unprotect

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// DPAPI is the Windows data protection API bound to the current user, or to
// the machine when FlagLocalMachine is set.
type DPAPI struct{}

// Platform returns the protection service of the running platform.
func Platform() Service {
	return DPAPI{}
}

func (DPAPI) ReverseProtect(in []byte, opts *Options) ([]byte, string, error) {
	if len(in) == 0 {
		return nil, "", ErrEmptyBlob
	}
	blobIn := toBlob(in)
	entropy, prompt, flags, err := dpapiParams(opts)
	if err != nil {
		return nil, "", err
	}

	var (
		blobOut windows.DataBlob
		name    *uint16
	)
	err = windows.CryptUnprotectData(&blobIn, &name, entropy, 0, prompt, flags, &blobOut)
	if err != nil {
		return nil, "", fmt.Errorf("CryptUnprotectData failed: %w", err)
	}
	defer localFree(unsafe.Pointer(blobOut.Data))
	defer localFree(unsafe.Pointer(name))

	var description string
	if name != nil {
		description = windows.UTF16PtrToString(name)
	}
	return fromBlob(blobOut), description, nil
}

// Protect protects cleartext for the current user. It is mostly useful for
// producing blobs to feed back into ReverseProtect.
func (DPAPI) Protect(cleartext []byte, description string, opts *Options) ([]byte, error) {
	blobIn := toBlob(cleartext)
	entropy, prompt, flags, err := dpapiParams(opts)
	if err != nil {
		return nil, err
	}

	var name *uint16
	if description != "" {
		name, err = windows.UTF16PtrFromString(description)
		if err != nil {
			return nil, fmt.Errorf("invalid description: %w", err)
		}
	}

	var blobOut windows.DataBlob
	err = windows.CryptProtectData(&blobIn, name, entropy, 0, prompt, flags, &blobOut)
	if err != nil {
		return nil, fmt.Errorf("CryptProtectData failed: %w", err)
	}
	defer localFree(unsafe.Pointer(blobOut.Data))
	return fromBlob(blobOut), nil
}

func dpapiParams(opts *Options) (*windows.DataBlob, *windows.CryptProtectPromptStruct, uint32, error) {
	if opts == nil {
		return nil, nil, 0, nil
	}
	var entropy *windows.DataBlob
	if len(opts.Entropy) > 0 {
		b := toBlob(opts.Entropy)
		entropy = &b
	}
	var prompt *windows.CryptProtectPromptStruct
	if opts.Prompt != nil {
		prompt = &windows.CryptProtectPromptStruct{
			PromptFlags: opts.Prompt.Flags,
			App:         windows.HWND(opts.Prompt.Window),
		}
		prompt.Size = uint32(unsafe.Sizeof(*prompt))
		if opts.Prompt.Prompt != "" {
			p, err := windows.UTF16PtrFromString(opts.Prompt.Prompt)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("invalid prompt: %w", err)
			}
			prompt.Prompt = p
		}
	}
	return entropy, prompt, opts.Flags, nil
}

func toBlob(b []byte) windows.DataBlob {
	if len(b) == 0 {
		return windows.DataBlob{}
	}
	return windows.DataBlob{
		Size: uint32(len(b)),
		Data: &b[0],
	}
}

// fromBlob copies memory owned by the system into a Go slice.
func fromBlob(b windows.DataBlob) []byte {
	if b.Size == 0 || b.Data == nil {
		return []byte{}
	}
	d := make([]byte, b.Size)
	copy(d, unsafe.Slice(b.Data, b.Size))
	return d
}

func localFree(p unsafe.Pointer) {
	if p == nil {
		return
	}
	_, _ = windows.LocalFree(windows.Handle(p))
}
