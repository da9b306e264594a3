// Package secret encrypts upstream session cookies at rest with Fernet.
package secret

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fernet/fernet-go"
)

var (
	// ErrNoKey is returned by Encrypt when no key is configured.
	ErrNoKey = errors.New("secret: no encryption key configured")
	// ErrDecrypt is returned for tokens that fail verification or when no key is configured.
	ErrDecrypt = errors.New("secret: decryption failed")
)

// Vault holds one or more Fernet keys. The first key encrypts; every key is
// tried for decryption so keys can be rotated.
type Vault struct {
	keys []*fernet.Key
}

// NewVault parses a comma-separated list of base64 Fernet keys. An empty
// list yields a vault that cannot encrypt and fails every decryption.
func NewVault(keys string) (*Vault, error) {
	var raw []string
	for _, k := range strings.Split(keys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			raw = append(raw, k)
		}
	}
	if len(raw) == 0 {
		return &Vault{}, nil
	}

	decoded, err := fernet.DecodeKeys(raw...)
	if err != nil {
		return nil, fmt.Errorf("failed to decode fernet key: %w", err)
	}
	return &Vault{keys: decoded}, nil
}

// GenerateKey returns a new random key in its base64 form.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return k.Encode(), nil
}

// Enabled reports whether a key is configured.
func (v *Vault) Enabled() bool {
	return v != nil && len(v.keys) > 0
}

// Encrypt returns the Fernet token for plaintext.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if !v.Enabled() {
		return "", ErrNoKey
	}
	tok, err := fernet.EncryptAndSign([]byte(plaintext), v.keys[0])
	if err != nil {
		return "", fmt.Errorf("failed to encrypt: %w", err)
	}
	return string(tok), nil
}

// Decrypt verifies and decrypts a token. Tokens never expire.
func (v *Vault) Decrypt(token string) (string, error) {
	if !v.Enabled() || token == "" {
		return "", ErrDecrypt
	}
	msg := fernet.VerifyAndDecrypt([]byte(token), 0, v.keys)
	if msg == nil {
		return "", ErrDecrypt
	}
	return string(msg), nil
}
