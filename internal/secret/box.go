// Package secret seals small values such as OAuth tokens before they are
// written to the database.
package secret

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "sb1:"

var (
	ErrInvalidKey    = errors.New("credential key must be 32 bytes of hex")
	ErrSealedNoKey   = errors.New("value is sealed but no credential key is configured")
	ErrDecryptFailed = errors.New("failed to open sealed value")
)

// Box seals and opens strings with a shared key. A Box without a key passes
// values through unchanged.
type Box struct {
	key *[32]byte
}

// NewBox builds a Box from a hex encoded 32-byte key. An empty key yields a
// passthrough Box.
func NewBox(hexKey string) (*Box, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return &Box{}, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKey
	}
	var key [32]byte
	copy(key[:], raw)
	return &Box{key: &key}, nil
}

func (b *Box) Enabled() bool {
	return b != nil && b.key != nil
}

func (b *Box) Seal(plaintext string) (string, error) {
	if !b.Enabled() || plaintext == "" {
		return plaintext, nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, b.key)
	return sealedPrefix + base64.RawStdEncoding.EncodeToString(sealed), nil
}

// Open reverses Seal. Values without the sealed prefix are returned as-is so
// rows written before a key was configured stay readable.
func (b *Box) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if !b.Enabled() {
		return "", ErrSealedNoKey
	}
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil || len(raw) < 24 {
		return "", ErrDecryptFailed
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, b.key)
	if !ok {
		return "", ErrDecryptFailed
	}
	return string(opened), nil
}
