package chromium

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// BlobUnprotector reverses a platform protect operation.
type BlobUnprotector interface {
	Unprotect(protected []byte) ([]byte, error)
}

var dpapiPrefix = []byte("DPAPI")

var ErrNoEncryptedKey = errors.New("could not find encrypted key in local state file")

type localState struct {
	OSCrypt struct {
		EncryptedKey string `json:"encrypted_key"`
	} `json:"os_crypt"`
}

// MasterKey reads os_crypt.encrypted_key from a Local State file and
// unprotects it.
func MasterKey(u BlobUnprotector, localStatePath string) ([]byte, error) {
	data, err := os.ReadFile(localStatePath)
	if err != nil {
		return nil, fmt.Errorf("could not read local state file: %w", err)
	}
	var state localState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("could not decode local state file: %w", err)
	}
	if state.OSCrypt.EncryptedKey == "" {
		return nil, ErrNoEncryptedKey
	}
	encryptedKey, err := base64.StdEncoding.DecodeString(state.OSCrypt.EncryptedKey)
	if err != nil {
		return nil, fmt.Errorf("could not base64 decode encrypted key: %w", err)
	}
	if !bytes.HasPrefix(encryptedKey, dpapiPrefix) {
		return nil, errors.New("encrypted key does not have DPAPI prefix")
	}
	key, err := u.Unprotect(encryptedKey[len(dpapiPrefix):])
	if err != nil {
		return nil, fmt.Errorf("could not unprotect encrypted key: %w", err)
	}
	return key, nil
}
