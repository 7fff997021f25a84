// Package unprotecttest provides a protection service that behaves like the
// platform one but runs anywhere. Blobs are bound to a Principal, so a blob
// protected for one principal cannot be unprotected by another.
package unprotecttest

import (
	"bytes"
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/elvis972602/blob-unprotect/unprotect"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	blobVersion = 1
	saltLength  = 16
	keyLength   = chacha20poly1305.KeySize
	iterations  = 4000
)

// provider is the DPAPI provider GUID {df9d8cd0-1501-11d1-8c7a-00c04fc297eb}
// in its on-disk byte order.
var provider = []byte{
	0xd0, 0x8c, 0x9d, 0xdf, 0x01, 0x15, 0xd1, 0x11,
	0x8c, 0x7a, 0x00, 0xc0, 0x4f, 0xc2, 0x97, 0xeb,
}

// ErrBadData is returned for any blob the service cannot open. The platform
// service reports the same condition as ERROR_INVALID_DATA.
var ErrBadData = errors.New("the data is invalid")

type Principal struct {
	Name   string
	secret []byte
}

func NewPrincipal(name string, secret []byte) Principal {
	return Principal{Name: name, secret: append([]byte(nil), secret...)}
}

// RandomPrincipal returns a principal with a fresh random secret.
func RandomPrincipal(name string) Principal {
	secret := make([]byte, keyLength)
	if _, err := rand.Read(secret); err != nil {
		panic(fmt.Sprintf("unprotecttest: could not read random secret: %v", err))
	}
	return Principal{Name: name, secret: secret}
}

// Service protects and unprotects blobs for a user principal, and for a
// machine principal when unprotect.FlagLocalMachine is set.
type Service struct {
	mu      sync.RWMutex
	user    Principal
	machine Principal
	calls   int
}

func NewService(user Principal) *Service {
	return &Service{
		user:    user,
		machine: RandomPrincipal("machine"),
	}
}

func (s *Service) SetMachine(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machine = p
}

// Calls returns how many times ReverseProtect was called.
func (s *Service) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// blob layout:
//
//	version     uint32 LE
//	provider    16 bytes
//	flags       uint32 LE
//	descLen     uint16 LE
//	description descLen bytes
//	salt        16 bytes
//	nonce       24 bytes
//	ciphertext  with 16 byte tag
//
// everything before the ciphertext, followed by the entropy, is the
// additional data of the AEAD.
func (s *Service) Protect(cleartext []byte, description string, opts *unprotect.Options) ([]byte, error) {
	if len(description) > 0xffff {
		return nil, errors.New("description too long")
	}
	entropy, flags := params(opts)

	s.mu.RLock()
	p := s.principal(flags)
	s.mu.RUnlock()

	var header bytes.Buffer
	_ = binary.Write(&header, binary.LittleEndian, uint32(blobVersion))
	header.Write(provider)
	_ = binary.Write(&header, binary.LittleEndian, flags&unprotect.FlagLocalMachine)
	_ = binary.Write(&header, binary.LittleEndian, uint16(len(description)))
	header.WriteString(description)

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("could not read salt: %w", err)
	}
	header.Write(salt)

	aead, err := chacha20poly1305.NewX(deriveKey(p, salt))
	if err != nil {
		return nil, fmt.Errorf("could not create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("could not read nonce: %w", err)
	}
	header.Write(nonce)

	out := header.Bytes()
	ad := append(append([]byte(nil), out...), entropy...)
	return aead.Seal(out, nonce, cleartext, ad), nil
}

func (s *Service) ReverseProtect(in []byte, opts *unprotect.Options) ([]byte, string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	entropy, _ := params(opts)
	r := bytes.NewReader(in)

	var (
		version, flags uint32
		descLen        uint16
	)
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil || version != blobVersion {
		return nil, "", ErrBadData
	}
	guid := make([]byte, len(provider))
	if _, err := io.ReadFull(r, guid); err != nil || !bytes.Equal(guid, provider) {
		return nil, "", ErrBadData
	}
	if err := binary.Read(r, binary.LittleEndian, &flags); err != nil {
		return nil, "", ErrBadData
	}
	if err := binary.Read(r, binary.LittleEndian, &descLen); err != nil {
		return nil, "", ErrBadData
	}
	rest := in[len(in)-r.Len():]
	if len(rest) < int(descLen)+saltLength+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, "", ErrBadData
	}
	description := string(rest[:descLen])
	salt := rest[descLen : int(descLen)+saltLength]
	nonce := rest[int(descLen)+saltLength : int(descLen)+saltLength+chacha20poly1305.NonceSizeX]
	ciphertext := rest[int(descLen)+saltLength+chacha20poly1305.NonceSizeX:]

	s.mu.RLock()
	p := s.principal(flags)
	s.mu.RUnlock()

	aead, err := chacha20poly1305.NewX(deriveKey(p, salt))
	if err != nil {
		return nil, "", fmt.Errorf("could not create cipher: %w", err)
	}
	headerLen := len(in) - len(ciphertext)
	ad := append(append([]byte(nil), in[:headerLen]...), entropy...)
	out, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, "", ErrBadData
	}
	if out == nil {
		out = []byte{}
	}
	return out, description, nil
}

func (s *Service) principal(flags uint32) Principal {
	if flags&unprotect.FlagLocalMachine != 0 {
		return s.machine
	}
	return s.user
}

func params(opts *unprotect.Options) ([]byte, uint32) {
	if opts == nil {
		return nil, 0
	}
	return opts.Entropy, opts.Flags
}

func deriveKey(p Principal, salt []byte) []byte {
	return pbkdf2.Key(p.secret, salt, iterations, keyLength, sha512.New)
}
