package cryptox

import (
	"bytes"
	"testing"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	require.Len(t, key1, KeyLength)
	assert.True(t, bytes.Equal(key1, key2), "same inputs must produce the same key")
}

func TestDeriveKey_DifferentSalts(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveKey(password, []byte("salt-1"))
	key2 := DeriveKey(password, []byte("salt-2"))

	assert.False(t, bytes.Equal(key1, key2), "different salts must produce different keys")
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(KeyLength)
	plaintext := []byte("the quick brown fox")

	ciphertext, nonce, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	require.Len(t, nonce, NonceLength)
	assert.NotEqual(t, plaintext, ciphertext)

	got, err := Decrypt(ciphertext, nonce, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	key := common.GenerateRandByteArray(KeyLength)

	_, n1, err := Encrypt([]byte("v"), key)
	require.NoError(t, err)
	_, n2, err := Encrypt([]byte("v"), key)
	require.NoError(t, err)

	assert.NotEqual(t, n1, n2)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	key := common.GenerateRandByteArray(KeyLength)
	other := common.GenerateRandByteArray(KeyLength)

	ciphertext, nonce, err := Encrypt([]byte("v"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, nonce, other)
	require.Error(t, err)
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	key := common.GenerateRandByteArray(KeyLength)

	ciphertext, nonce, err := Encrypt([]byte("v"), key)
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = Decrypt(ciphertext, nonce, key)
	require.Error(t, err)
}
