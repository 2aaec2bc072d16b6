package stellar

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// Vault seals settlement-account secrets before they touch storage.
// Secret material is read-many/write-rarely and only opened at the point
// of use in a transfer.
type Vault struct {
	key [32]byte
}

// NewVault builds a vault around a 32-byte symmetric key.
func NewVault(key [32]byte) *Vault {
	return &Vault{key: key}
}

var errVaultOpen = errors.New("sealed secret failed to open")

// Seal encrypts a secret seed for storage.
func (v *Vault) Seal(secret string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], []byte(secret), &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a sealed secret.
func (v *Vault) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", errVaultOpen
	}
	if len(raw) < 24 {
		return "", errVaultOpen
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &v.key)
	if !ok {
		return "", errVaultOpen
	}
	return string(plain), nil
}
