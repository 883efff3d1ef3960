// Package cryptox wraps the platform cryptographic primitives used by the
// encryption service: argon2id key derivation and AES-256-GCM with an
// explicit random nonce.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyLength is the symmetric key size in bytes (AES-256).
	KeyLength = 32

	// NonceLength is the GCM nonce size in bytes.
	NonceLength = 12

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// DeriveKey derives a 32-byte key from a passphrase and salt via argon2id.
// The parameters are fixed; changing them invalidates every stored key.
func DeriveKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, KeyLength)
}

// Encrypt seals plaintext with AES-GCM under key. A fresh random 12-byte
// nonce is generated per call; nonces are never reused for a given key.
func Encrypt(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, err
	}

	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. It fails if the key or
// nonce does not match or the data was tampered with.
func Decrypt(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
