// Package crypto seals credentials before they are written to local storage.
// Uses AES-256-GCM for authenticated encryption.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

var (
	// ErrInvalidCiphertext is returned when decryption fails.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid key")
)

// newAEAD derives a 32-byte key from the passphrase and builds the GCM cipher.
func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) == 0 {
		return nil, ErrInvalidKey
	}
	derivedKey := sha256.Sum256(key)

	block, err := aes.NewCipher(derivedKey[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext and returns nonce||ciphertext as base64.
func Encrypt(plaintext, key []byte) (string, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tampering or a wrong key yields ErrInvalidCiphertext.
func Decrypt(ciphertext string, key []byte) ([]byte, error) {
	gcm, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// EncryptString encrypts a string with a string passphrase.
func EncryptString(plaintext, key string) (string, error) {
	return Encrypt([]byte(plaintext), []byte(key))
}

// DecryptString decrypts a value produced by EncryptString.
func DecryptString(ciphertext, key string) (string, error) {
	plaintext, err := Decrypt(ciphertext, []byte(key))
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
