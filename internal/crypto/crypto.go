// Package crypto derives purpose-bound keys from the server master key and
// seals blobs that leave the encrypted database.
//
//   - Database key: HKDF-SHA256(master, info="database:v1"), the SQLCipher key
//   - Audio key: HKDF-SHA256(master, info="audio:v1"), seals cached speech
//     before it is written to object storage
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of every derived key in bytes (256 bits)
	KeySize = 32

	// NonceSize is the size of the AES-GCM nonce in bytes (96 bits)
	NonceSize = 12

	tagSize = 16
)

// Key purposes used for domain separation.
const (
	PurposeDatabase = "database"
	PurposeAudio    = "audio"
)

// DeriveKey derives a 32-byte key for purpose from masterKey using
// HKDF-SHA256 with info = purpose + ":v" + version.
func DeriveKey(masterKey []byte, purpose string, version int) []byte {
	info := fmt.Sprintf("%s:v%d", purpose, version)

	// Salt is nil: the master key is already high-entropy.
	r := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF cannot run short for 32 bytes of SHA-256 output.
		panic(fmt.Sprintf("HKDF failed: %v", err))
	}
	return key
}

// Seal encrypts plaintext with AES-256-GCM.
// Output format: nonce (12 bytes) || ciphertext || auth tag (16 bytes)
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+tagSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a value produced by Seal.
func Open(key, sealed []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(sealed) < NonceSize+tagSize {
		return nil, fmt.Errorf("sealed value too short: got %d bytes, need at least %d", len(sealed), NonceSize+tagSize)
	}

	plaintext, err := gcm.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
