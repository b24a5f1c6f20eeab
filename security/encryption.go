// Package security wraps the cipher primitives the processing core depends
// on. Inside a real enclave these calls land on the platform's sealing
// services; this implementation uses AES-256-GCM so the core can run and be
// tested outside one.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/veildb/veil/errors"
)

const (
	KeySize   = 32 // AES-256
	NonceSize = 12
	TagSize   = 16
	Overhead  = NonceSize + TagSize
)

// EncSize returns the on-the-wire size of a sealed payload of n plaintext
// bytes.
func EncSize(n int) int {
	return n + Overhead
}

// Encryptor performs authenticated encryption with associated data. A given
// instance owns no buffers and is safe to share across readers and writers of
// one invocation.
type Encryptor struct {
	aead cipher.AEAD
}

func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, errors.Errorf("invalid key size: expected %d, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Encryptor{aead: aead}, nil
}

// Seal encrypts plaintext. Layout: [nonce (12)][ciphertext][tag (16)].
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	return e.SealWithAAD(plaintext, nil)
}

// SealWithAAD encrypts plaintext binding aad into the authentication tag.
func (e *Encryptor) SealWithAAD(plaintext []byte, aad []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.WithStack(err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Open authenticates and decrypts data produced by Seal.
func (e *Encryptor) Open(data []byte) ([]byte, error) {
	return e.OpenWithAAD(data, nil)
}

// OpenWithAAD authenticates data against aad and decrypts it. Any mismatch in
// the ciphertext or the associated data fails before a single plaintext byte
// is produced.
func (e *Encryptor) OpenWithAAD(data []byte, aad []byte) ([]byte, error) {
	if len(data) < Overhead {
		return nil, errors.NewIntegrityFailureError("sealed payload truncated")
	}
	nonce := data[:NonceSize]
	ciphertext := data[NonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, errors.NewIntegrityFailureError("authenticated decryption failed")
	}
	return plaintext, nil
}

// GenerateKey generates a random 32-byte key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, errors.WithStack(err)
	}
	return key, nil
}
