package unprotecttest

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringPrincipal returns a principal whose secret lives in the OS keyring
// under service/user. A new secret is stored on first use, so blobs
// protected by one process can be unprotected by a later one running as the
// same login.
func KeyringPrincipal(service, user string) (Principal, error) {
	encoded, err := keyring.Get(service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		secret := make([]byte, keyLength)
		if _, err := rand.Read(secret); err != nil {
			return Principal{}, fmt.Errorf("could not read random secret: %w", err)
		}
		encoded = base64.StdEncoding.EncodeToString(secret)
		if err := keyring.Set(service, user, encoded); err != nil {
			return Principal{}, fmt.Errorf("could not store secret in keyring: %w", err)
		}
	} else if err != nil {
		return Principal{}, fmt.Errorf("could not read secret from keyring: %w", err)
	}

	secret, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Principal{}, fmt.Errorf("could not decode keyring secret: %w", err)
	}
	return Principal{Name: user, secret: secret}, nil
}
