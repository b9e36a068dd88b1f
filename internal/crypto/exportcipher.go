// Package crypto provides AES-256-GCM authenticated encryption for exported audit
// log files. Exports can contain the full change history of the inventory,
// including actor identities and IP addresses, so deployments that move export
// files through shared storage or email can require them encrypted at rest.
// AES-256-GCM provides both confidentiality and authenticated integrity, so a
// tampered export fails to decrypt instead of yielding silently altered rows.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a master key is not exactly 32 bytes (required for AES-256).
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrPayloadCorrupted is returned when a sealed payload is too short to contain a valid nonce.
	ErrPayloadCorrupted = errors.New("crypto: payload is corrupted or truncated")
	// ErrDecryptionFailed is returned when AES-GCM authentication or decryption fails, indicating tampering or a wrong key.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrSaltTooShort is returned when the provided salt is fewer than 16 bytes, which would weaken PBKDF2 key derivation.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
)

// ExportCipher encrypts and decrypts export payloads.
type ExportCipher struct {
	masterKey []byte
}

// NewExportCipher creates a cipher with a 32-byte master key
func NewExportCipher(masterKey []byte) (*ExportCipher, error) {
	if len(masterKey) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, 32)
	copy(keyCopy, masterKey)
	return &ExportCipher{masterKey: keyCopy}, nil
}

// DeriveExportCipher creates a cipher by deriving a key from a passphrase
func DeriveExportCipher(passphrase string, salt []byte, iterations int) (*ExportCipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000 // Secure default
	}
	derivedKey := pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
	return NewExportCipher(derivedKey)
}

// Seal encrypts a payload and returns nonce-prefixed ciphertext. Export files
// are written as binary attachments, so no text encoding is applied.
func (ec *ExportCipher) Seal(plaintext []byte) ([]byte, error) {
	aead, err := ec.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce-prefixed ciphertext produced by Seal.
func (ec *ExportCipher) Open(sealed []byte) ([]byte, error) {
	aead, err := ec.aead()
	if err != nil {
		return nil, err
	}

	nonceLen := aead.NonceSize()
	if len(sealed) < nonceLen {
		return nil, ErrPayloadCorrupted
	}

	plaintext, err := aead.Open(nil, sealed[:nonceLen], sealed[nonceLen:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

func (ec *ExportCipher) aead() (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(ec.masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

// GenerateKey creates a cryptographically secure random 32-byte key
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateSalt creates a cryptographically secure random salt
func GenerateSalt(length int) ([]byte, error) {
	if length < 16 {
		length = 16
	}
	salt := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}
