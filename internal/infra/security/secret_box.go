// File: internal/infra/security/secret_box.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const sealedPrefix = "enc:v1:"

// SecretBox seals setting values at rest with AES-GCM. The setting key is
// used as additional data, so a sealed value cannot be moved to another key.
type SecretBox struct {
	gcm cipher.AEAD
}

// NewSecretBox takes a 16, 24 or 32 byte key (AES-128/192/256).
func NewSecretBox(key string) (*SecretBox, error) {
	k := []byte(key)
	switch len(k) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("encryption key must be 16, 24, or 32 bytes; got %d", len(k))
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &SecretBox{gcm: gcm}, nil
}

// Seal returns "enc:v1:" + base64(nonce || ciphertext).
func (b *SecretBox) Seal(settingKey, plaintext string) (string, error) {
	nonce := make([]byte, b.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := b.gcm.Seal(nonce, nonce, []byte(plaintext), []byte(settingKey))
	return sealedPrefix + base64.StdEncoding.EncodeToString(ct), nil
}

// Open reverses Seal. Values without the prefix were stored before sealing
// was enabled and are returned unchanged.
func (b *SecretBox) Open(settingKey, stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := b.gcm.NonceSize()
	if len(data) < ns {
		return "", fmt.Errorf("ciphertext too short")
	}
	pt, err := b.gcm.Open(nil, data[:ns], data[ns:], []byte(settingKey))
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}

func IsSealed(v string) bool { return strings.HasPrefix(v, sealedPrefix) }
