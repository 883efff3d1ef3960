// Package encryption implements field-level encryption on top of the
// cryptox primitives: a passphrase-derived master key that only ever
// wraps and unwraps domain-scoped data keys, and selective encryption of
// configured field paths inside nested objects.
package encryption

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/datakeeper/internal/common"
	"github.com/dmitrijs2005/datakeeper/internal/cryptox"
	"github.com/dmitrijs2005/datakeeper/internal/logging"
	"github.com/dmitrijs2005/datakeeper/internal/models"
	"github.com/dmitrijs2005/datakeeper/internal/repositories/keys"
	"github.com/google/uuid"
)

const (
	algorithmName = "AES-GCM"
	keyLengthBits = 256

	// verifierText is round-tripped through encrypt/decrypt to check a
	// candidate master key without ever persisting the key itself.
	verifierText = "datakeeper-master-key-verifier"
)

type dataKey struct {
	id  string
	raw []byte
}

// Service holds the master key and unwrapped data keys in process memory
// only; Destroy wipes them. All persisted key material is wrapped.
type Service struct {
	repo keys.Repository
	log  logging.Logger

	mu       sync.Mutex
	master   []byte
	dataKeys map[string]*dataKey
}

// NewService returns an encryption service backed by the given key repository.
func NewService(repo keys.Repository, log logging.Logger) *Service {
	return &Service{
		repo:     repo,
		log:      log,
		dataKeys: make(map[string]*dataKey),
	}
}

// Initialized reports whether a master key is active for this session.
func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.master != nil
}

// SetMasterPassword derives a fresh master key from password and a random
// salt, keeps it in memory and persists only the derivation parameters
// plus an encrypted verifier string.
func (s *Service) SetMasterPassword(ctx context.Context, password string) error {
	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveKey([]byte(password), salt)

	verifier, nonce, err := cryptox.Encrypt([]byte(verifierText), key)
	if err != nil {
		return fmt.Errorf("failed to seal verifier: %w", err)
	}

	rec := &models.MasterKeyRecord{
		Salt:          salt,
		Algorithm:     algorithmName,
		KeyLength:     keyLengthBits,
		KDF:           "argon2id",
		Created:       time.Now().UTC(),
		Verifier:      verifier,
		VerifierNonce: nonce,
	}
	if err := s.repo.SaveMaster(ctx, rec); err != nil {
		return err
	}

	s.mu.Lock()
	common.WipeByteArray(s.master)
	s.master = key
	s.mu.Unlock()

	s.log.Info(ctx, "master password set")
	return nil
}

// VerifyMasterPassword re-derives a candidate key from the stored salt and
// round-trips the verifier string through decrypt. On success the
// candidate becomes the active master key. A wrong password yields
// (false, nil), not an error.
func (s *Service) VerifyMasterPassword(ctx context.Context, password string) (bool, error) {
	rec, err := s.repo.GetMaster(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, common.ErrNoMasterRecord
	}

	candidate := cryptox.DeriveKey([]byte(password), rec.Salt)
	plaintext, err := cryptox.Decrypt(rec.Verifier, rec.VerifierNonce, candidate)
	if err != nil || string(plaintext) != verifierText {
		common.WipeByteArray(candidate)
		return false, nil
	}

	s.mu.Lock()
	common.WipeByteArray(s.master)
	s.master = candidate
	s.mu.Unlock()

	s.log.Info(ctx, "master password verified")
	return true, nil
}

// GenerateDataKey creates a random key for the domain, persists it wrapped
// under the master key and keeps it in memory. An existing key for the
// domain is replaced.
func (s *Service) GenerateDataKey(ctx context.Context, domain string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateDataKeyLocked(ctx, domain)
}

func (s *Service) generateDataKeyLocked(ctx context.Context, domain string) (string, error) {
	if s.master == nil {
		return "", common.ErrNoMasterKey
	}

	raw := common.GenerateRandByteArray(cryptox.KeyLength)
	id := uuid.NewString()

	wrapped, nonce, err := cryptox.Encrypt(raw, s.master)
	if err != nil {
		return "", fmt.Errorf("failed to wrap data key: %w", err)
	}

	rec := &models.DataKeyRecord{
		ID:        id,
		Domain:    domain,
		Algorithm: algorithmName,
		KeyLength: keyLengthBits,
		Wrapped:   wrapped,
		Nonce:     nonce,
		Created:   time.Now().UTC(),
	}
	if err := s.repo.SaveDataKey(ctx, rec); err != nil {
		return "", err
	}

	if old := s.dataKeys[domain]; old != nil {
		common.WipeByteArray(old.raw)
	}
	s.dataKeys[domain] = &dataKey{id: id, raw: raw}

	s.log.Info(ctx, "data key generated", "domain", domain)
	return id, nil
}

// RotateDataKey replaces the domain's key with a fresh one. Callers are
// responsible for re-encrypting existing data under the new key.
func (s *Service) RotateDataKey(ctx context.Context, domain string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.master == nil {
		return "", common.ErrNoMasterKey
	}
	if err := s.repo.DeleteDataKey(ctx, domain); err != nil {
		return "", err
	}
	delete(s.dataKeys, domain)
	return s.generateDataKeyLocked(ctx, domain)
}

// getDataKeyLocked returns the raw key for domain, unwrapping a persisted
// key or lazily generating one when none exists yet.
func (s *Service) getDataKeyLocked(ctx context.Context, domain string) (*dataKey, error) {
	if k, ok := s.dataKeys[domain]; ok {
		return k, nil
	}
	if s.master == nil {
		return nil, common.ErrNoMasterKey
	}

	rec, err := s.repo.GetDataKey(ctx, domain)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		raw, err := cryptox.Decrypt(rec.Wrapped, rec.Nonce, s.master)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap data key[%s]: %w", domain, err)
		}
		k := &dataKey{id: rec.ID, raw: raw}
		s.dataKeys[domain] = k
		return k, nil
	}

	if _, err := s.generateDataKeyLocked(ctx, domain); err != nil {
		return nil, err
	}
	return s.dataKeys[domain], nil
}

// EncryptData encrypts a single value under the domain's data key.
// Non-string values are JSON-serialized first.
func (s *Service) EncryptData(ctx context.Context, value any, domain string) (*models.EncryptedField, error) {
	plaintext, err := valueToText(value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k, err := s.getDataKeyLocked(ctx, domain)
	if err != nil {
		return nil, err
	}

	ciphertext, nonce, err := cryptox.Encrypt([]byte(plaintext), k.raw)
	if err != nil {
		return nil, err
	}
	return &models.EncryptedField{
		Encrypted:  true,
		Ciphertext: ciphertext,
		Nonce:      nonce,
		Algorithm:  algorithmName,
		KeyLength:  keyLengthBits,
		KeyID:      k.id,
	}, nil
}

// DecryptData reverses EncryptData, returning the plaintext as text.
func (s *Service) DecryptData(ctx context.Context, field *models.EncryptedField, domain string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, err := s.getDataKeyLocked(ctx, domain)
	if err != nil {
		return "", err
	}

	plaintext, err := cryptox.Decrypt(field.Ciphertext, field.Nonce, k.raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// EncryptObject encrypts the configured field paths of obj in place and
// returns it. Paths that are absent or already encrypted pass through
// unchanged.
func (s *Service) EncryptObject(ctx context.Context, obj map[string]any, cfg FieldConfig) (map[string]any, error) {
	for _, path := range cfg.Paths {
		parent, leaf, ok := resolvePath(obj, path)
		if !ok {
			continue
		}
		value := parent[leaf]
		if IsEncryptedField(value) {
			continue
		}
		field, err := s.EncryptData(ctx, value, cfg.Domain)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %q: %w", path, err)
		}
		wrapped, err := fieldToMap(field)
		if err != nil {
			return nil, err
		}
		parent[leaf] = wrapped
	}
	return obj, nil
}

// DecryptObject reverses EncryptObject. A field that fails to decrypt is
// left in its encrypted wrapper form rather than aborting the whole
// object.
func (s *Service) DecryptObject(ctx context.Context, obj map[string]any, cfg FieldConfig) (map[string]any, error) {
	for _, path := range cfg.Paths {
		parent, leaf, ok := resolvePath(obj, path)
		if !ok {
			continue
		}
		field, ok := fieldFromValue(parent[leaf])
		if !ok {
			continue
		}
		plaintext, err := s.DecryptData(ctx, field, cfg.Domain)
		if err != nil {
			s.log.Warn(ctx, "field decryption failed, leaving encrypted", "path", path, "error", err)
			continue
		}
		parent[leaf] = textToValue(plaintext)
	}
	return obj, nil
}

// KeyCount returns the number of persisted data keys.
func (s *Service) KeyCount(ctx context.Context) (int, error) {
	recs, err := s.repo.ListDataKeys(ctx)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Destroy eagerly wipes all key material from memory.
func (s *Service) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	common.WipeByteArray(s.master)
	s.master = nil
	for domain, k := range s.dataKeys {
		common.WipeByteArray(k.raw)
		delete(s.dataKeys, domain)
	}
}

// valueToText serializes a value for encryption: strings pass through,
// anything else becomes JSON.
func valueToText(value any) (string, error) {
	if str, ok := value.(string); ok {
		return str, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to serialize value: %w", err)
	}
	return string(b), nil
}

// textToValue undoes valueToText: valid JSON is unmarshalled, anything
// else is returned as the plain string.
func textToValue(text string) any {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}

// resolvePath walks a dot-separated path through nested maps, returning
// the parent map and leaf key. ok is false when any intermediate segment
// is missing or not an object.
func resolvePath(obj map[string]any, path string) (map[string]any, string, bool) {
	segments := strings.Split(path, ".")
	current := obj
	for _, seg := range segments[:len(segments)-1] {
		next, ok := current[seg].(map[string]any)
		if !ok {
			return nil, "", false
		}
		current = next
	}
	leaf := segments[len(segments)-1]
	if _, ok := current[leaf]; !ok {
		return nil, "", false
	}
	return current, leaf, true
}

// IsEncryptedField reports whether a decoded JSON value is an encrypted
// field wrapper.
func IsEncryptedField(value any) bool {
	_, ok := fieldFromValue(value)
	return ok
}

func fieldToMap(field *models.EncryptedField) (map[string]any, error) {
	b, err := json.Marshal(field)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fieldFromValue(value any) (*models.EncryptedField, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	if marker, ok := m["__encrypted"].(bool); !ok || !marker {
		return nil, false
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, false
	}
	field := &models.EncryptedField{}
	if err := json.Unmarshal(b, field); err != nil {
		return nil, false
	}
	return field, true
}
