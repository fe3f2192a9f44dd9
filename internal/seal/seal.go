// Package seal encrypts the secret fields of stored records. Sealed values
// are age ciphertexts, base64 encoded and marked with a prefix so that
// plaintext values written before a data key was configured still read back.
package seal

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Prefix marks a sealed value.
const Prefix = "age:"

// ErrNoKey is returned when opening a sealed value without a data key.
var ErrNoKey = errors.New("sealed value but no data key configured")

// Sealer turns plaintext secrets into their stored form and back.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// IsSealed reports whether a stored value carries the sealed prefix.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, Prefix)
}

// Plaintext stores secrets as given.
type Plaintext struct{}

// Seal returns plaintext unchanged.
func (Plaintext) Seal(plaintext string) (string, error) {
	return plaintext, nil
}

// Open returns stored unchanged unless it is sealed, which it cannot open.
func (Plaintext) Open(stored string) (string, error) {
	if IsSealed(stored) {
		return "", ErrNoKey
	}
	return stored, nil
}

// AgeSealer encrypts to a single x25519 identity.
type AgeSealer struct {
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewAgeSealer parses an AGE-SECRET-KEY-1... data key.
func NewAgeSealer(dataKey string) (*AgeSealer, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(dataKey))
	if err != nil {
		return nil, fmt.Errorf("parse data key: %w", err)
	}
	return &AgeSealer{identity: identity, recipient: identity.Recipient()}, nil
}

// GenerateDataKey returns a fresh data key suitable for NewAgeSealer.
func GenerateDataKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate data key: %w", err)
	}
	return identity.String(), nil
}

// Seal encrypts plaintext and returns the prefixed base64 ciphertext.
func (s *AgeSealer) Seal(plaintext string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, s.recipient)
	if err != nil {
		return "", fmt.Errorf("create encryptor: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize encryption: %w", err)
	}
	return Prefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a sealed value. Unsealed values are returned as they are.
func (s *AgeSealer) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, Prefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), s.identity)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read plaintext: %w", err)
	}
	return string(plain), nil
}
