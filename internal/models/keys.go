package models

import "time"

// MasterKeyRecord is what survives a restart of the encryption service:
// everything needed to re-derive the master key from a passphrase, but
// never the key itself.
type MasterKeyRecord struct {
	Salt      []byte    `json:"salt"`
	Algorithm string    `json:"algorithm"`
	KeyLength int       `json:"keyLength"`
	KDF       string    `json:"kdf"`
	Created   time.Time `json:"created"`

	// Verifier is a fixed string sealed under the derived key; a password
	// check round-trips it through decrypt. The key itself is never stored.
	Verifier      []byte `json:"verifier"`
	VerifierNonce []byte `json:"verifierNonce"`
}

// DataKeyRecord is a domain-scoped symmetric key persisted in wrapped form.
// Wrapped/Nonce are the AES-GCM ciphertext and nonce of the raw key under
// the master key.
type DataKeyRecord struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Algorithm string    `json:"algorithm"`
	KeyLength int       `json:"keyLength"`
	Wrapped   []byte    `json:"wrapped"`
	Nonce     []byte    `json:"nonce"`
	Created   time.Time `json:"created"`
}

// EncryptedField is the wrapper produced by encrypting a single field
// value. The Encrypted marker distinguishes wrappers from plain values so
// decryption can be selective.
type EncryptedField struct {
	Encrypted  bool   `json:"__encrypted"`
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
	Algorithm  string `json:"algorithm"`
	KeyLength  int    `json:"keyLength"`
	KeyID      string `json:"keyId"`
}
