package chromium

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"log"
)

// Windows builds only ever write v10. v11 is the Linux keyring scheme and is
// left to the unprotector like any other unprefixed value.
var v10Prefix = []byte("v10")

var (
	ErrNoKey          = errors.New("v10 key is nil")
	ErrMalformedValue = errors.New("encrypted value too short")
)

// Counts is the number of values seen per encryption scheme.
type Counts struct {
	V10    int
	Legacy int
}

// CookieDecryptor decrypts the encrypted_value column of a chromium cookie
// store. It is not safe for concurrent use.
type CookieDecryptor struct {
	unprotector BlobUnprotector
	v10Key      []byte
	aead        cipher.AEAD
	counts      Counts
}

func NewCookieDecryptor(u BlobUnprotector, key []byte) *CookieDecryptor {
	return &CookieDecryptor{unprotector: u, v10Key: key}
}

// NewCookieDecryptorFromLocalState finds the Local State file under
// browserRoot and unprotects its key.
func NewCookieDecryptorFromLocalState(u BlobUnprotector, browserRoot string) (*CookieDecryptor, error) {
	path := FindMostRecentlyUsedFile(browserRoot, "Local State")
	if path == "" {
		return nil, errors.New("could not find Local State file")
	}
	log.Println("found local state file")
	key, err := MasterKey(u, path)
	if err != nil {
		return nil, err
	}
	return NewCookieDecryptor(u, key), nil
}

// Decrypt decrypts a v10 value (prefix, 12 byte nonce, ciphertext, 16 byte
// tag) with the master key, and hands anything else to the unprotector.
func (d *CookieDecryptor) Decrypt(encrypted []byte) ([]byte, error) {
	if !bytes.HasPrefix(encrypted, v10Prefix) {
		d.counts.Legacy++
		return d.unprotector.Unprotect(encrypted)
	}
	d.counts.V10++
	gcm, err := d.gcm()
	if err != nil {
		return nil, err
	}
	body := encrypted[len(v10Prefix):]
	if len(body) < gcm.NonceSize()+gcm.Overhead() {
		return nil, ErrMalformedValue
	}
	plaintext, err := gcm.Open(nil, body[:gcm.NonceSize()], body[gcm.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("could not open v10 value: %w", err)
	}
	return plaintext, nil
}

func (d *CookieDecryptor) Counts() Counts {
	return d.counts
}

func (d *CookieDecryptor) gcm() (cipher.AEAD, error) {
	if d.aead != nil {
		return d.aead, nil
	}
	if d.v10Key == nil {
		return nil, ErrNoKey
	}
	block, err := aes.NewCipher(d.v10Key)
	if err != nil {
		return nil, fmt.Errorf("invalid v10 key: %w", err)
	}
	if d.aead, err = cipher.NewGCM(block); err != nil {
		return nil, err
	}
	return d.aead, nil
}
