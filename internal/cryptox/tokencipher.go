// Package cryptox provides the symmetric cipher used for token-at-rest
// encryption.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the required master key length (AES-256).
const KeySize = 32

// ErrDecrypt is wrapped by every decryption failure: tampered ciphertext,
// ciphertext produced under a different key, or input that was never
// produced by Encrypt.
var ErrDecrypt = errors.New("cryptox: decryption failed")

// TokenCipher encrypts and decrypts opaque credential strings with a
// process-wide AES-256-GCM key. Each encryption uses a fresh random nonce,
// so encrypting the same plaintext twice yields different ciphertexts.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher builds a cipher from a 32-byte master key. A wrong-sized
// key is a construction error; callers treat it as fatal at startup rather
// than recoverable per call.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cryptox: master key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: cipher.NewGCM: %w", err)
	}

	return &TokenCipher{aead: aead}, nil
}

// Encrypt returns a base64-encoded string containing the random nonce
// (12 bytes) prepended to the GCM ciphertext and auth tag.
func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptox: rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any input not produced by this cipher under the
// same key fails with an error wrapping ErrDecrypt; it never returns garbage.
func (c *TokenCipher) Decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode: %v", ErrDecrypt, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return string(plaintext), nil
}

// EncryptOptional encrypts an optional value; nil passes through as nil.
// This carries the absence of a refresh token through the storage layer.
func (c *TokenCipher) EncryptOptional(plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	out, err := c.Encrypt(*plaintext)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DecryptOptional decrypts an optional value; nil passes through as nil.
func (c *TokenCipher) DecryptOptional(encoded *string) (*string, error) {
	if encoded == nil {
		return nil, nil
	}
	out, err := c.Decrypt(*encoded)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
