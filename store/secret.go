package store

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

var ErrNoKey = errors.New("access token is encrypted but no encryption key is configured")

// Sealer encrypts access tokens with NaCl secretbox.
type Sealer struct {
	key [32]byte
}

// NewSealer accepts a 32 byte key encoded as 64 hex characters or standard base64.
func NewSealer(encoded string) (*Sealer, error) {
	encoded = strings.TrimSpace(encoded)
	var raw []byte
	if b, err := hex.DecodeString(encoded); err == nil && len(b) == 32 {
		raw = b
	} else if b, err := base64.StdEncoding.DecodeString(encoded); err == nil && len(b) == 32 {
		raw = b
	} else {
		return nil, errors.New("token encryption key must be 32 bytes, hex or base64 encoded")
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Open reverses Seal. Values without the sealed prefix are returned unchanged.
func (s *Sealer) Open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	if s == nil {
		return "", ErrNoKey
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding sealed token: %w", err)
	}
	if len(raw) < 24+secretbox.Overhead {
		return "", errors.New("sealed token too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", errors.New("sealed token failed authentication")
	}
	return string(plain), nil
}

func (s *Store) sealToken(token string) (string, error) {
	if s.sealer == nil {
		return token, nil
	}
	return s.sealer.Seal(token)
}

func (s *Store) openToken(value string) (string, error) {
	return s.sealer.Open(value)
}
