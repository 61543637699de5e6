// Package securestore provides AES-256-GCM sealing, with the key derived
// via scrypt, and SHA-256 key hashing for bytes a store tier persists. It
// supplies the Cipher and HashKey primitives only; it does not wrap a
// storecore.KV or any other store itself.
package securestore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN   = 32768
	scryptR   = 8
	scryptP   = 1
	keyLength = 32
	nonceSize = 12
)

// Cipher holds a derived AES-256-GCM AEAD used to seal and open byte
// payloads.
type Cipher struct {
	gcm cipher.AEAD
}

// New derives an AES-256-GCM cipher from passphrase via scrypt.
func New(passphrase string) (*Cipher, error) {
	salt := sha256.Sum256([]byte("cachegate-securestore-salt-v1"))
	key, err := scrypt.Key([]byte(passphrase), salt[:], scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, fmt.Errorf("securestore: deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("securestore: creating cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("securestore: creating GCM: %w", err)
	}

	return &Cipher{gcm: gcm}, nil
}

// HashKey converts a cache key to its SHA-256 hex digest, so a key passed
// to a backend in that form does not carry the original URL.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// Seal encrypts data, prepending the nonce used.
func (c *Cipher) Seal(data []byte) ([]byte, error) {
	if c == nil || c.gcm == nil {
		return data, nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("securestore: generating nonce: %w", err)
	}

	// #nosec G407 -- nonce is randomly generated above via crypto/rand
	return c.gcm.Seal(nonce, nonce, data, nil), nil
}

// Open decrypts data sealed by Seal.
func (c *Cipher) Open(data []byte) ([]byte, error) {
	if c == nil || c.gcm == nil {
		return data, nil
	}
	if len(data) < nonceSize {
		return nil, fmt.Errorf("securestore: ciphertext too short")
	}

	nonce := data[:nonceSize]
	ciphertext := data[nonceSize:]

	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("securestore: decrypting: %w", err)
	}
	return plaintext, nil
}

// Enabled reports whether c actually performs encryption.
func (c *Cipher) Enabled() bool {
	return c != nil && c.gcm != nil
}
