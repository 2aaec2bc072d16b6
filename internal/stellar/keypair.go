package stellar

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
)

// Strkey version bytes for public keys (G...) and seeds (S...).
const (
	versionAccount byte = 6 << 3
	versionSeed    byte = 18 << 3
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

var (
	// ErrInvalidKey indicates a malformed strkey-encoded key.
	ErrInvalidKey = errors.New("invalid settlement network key")
)

// Keypair holds an ed25519 signing pair for a settlement-network account.
type Keypair struct {
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{pub: pub, priv: priv}, nil
}

// FromSecret reconstructs a keypair from its S... seed. The derived
// address is what authorization checks compare against.
func FromSecret(secret string) (*Keypair, error) {
	seed, err := decodeStrkey(secret, versionSeed)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Keypair{pub: priv.Public().(ed25519.PublicKey), priv: priv}, nil
}

// Address returns the G... public identifier.
func (k *Keypair) Address() string {
	return encodeStrkey(k.pub, versionAccount)
}

// Secret returns the S... seed encoding.
func (k *Keypair) Secret() string {
	return encodeStrkey(k.priv.Seed(), versionSeed)
}

// Sign produces a detached signature over the message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}

// IsAddress reports whether s parses as a G... account identifier.
func IsAddress(s string) bool {
	_, err := decodeStrkey(s, versionAccount)
	return err == nil
}

func encodeStrkey(payload []byte, version byte) string {
	raw := make([]byte, 0, 1+len(payload)+2)
	raw = append(raw, version)
	raw = append(raw, payload...)
	crc := crc16(raw)
	raw = append(raw, byte(crc&0xff), byte(crc>>8))
	return b32.EncodeToString(raw)
}

func decodeStrkey(s string, version byte) ([]byte, error) {
	raw, err := b32.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(raw) != 1+32+2 {
		return nil, ErrInvalidKey
	}
	if raw[0] != version {
		return nil, fmt.Errorf("%w: wrong version byte", ErrInvalidKey)
	}
	body, checksum := raw[:len(raw)-2], raw[len(raw)-2:]
	crc := crc16(body)
	if checksum[0] != byte(crc&0xff) || checksum[1] != byte(crc>>8) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidKey)
	}
	out := make([]byte, 32)
	copy(out, body[1:])
	return out, nil
}

// crc16 implements CRC16-XMODEM, the checksum strkey uses.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
