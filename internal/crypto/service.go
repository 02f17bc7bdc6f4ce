package crypto

import (
	"fmt"

	"github.com/casefile-labs/lexrag/internal/config"
)

// Service bundles per-tenant key derivation, vector sealing, and the
// decrypted-vector cache. A nil *Service is valid and means encryption
// is disabled; callers check for nil before sealing.
type Service struct {
	keyring *Keyring
	vectors *VectorCache
}

// NewService creates the encryption service, or (nil, nil) when
// encryption is disabled.
func NewService(cfg config.EncryptionConfig) (*Service, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	keyring, err := NewKeyring(cfg.MasterSecret, cfg.KeyTTL)
	if err != nil {
		return nil, fmt.Errorf("creating keyring: %w", err)
	}

	return &Service{
		keyring: keyring,
		vectors: NewVectorCache(cfg.VectorCacheSize, cfg.VectorCacheTTL),
	}, nil
}

// SealVector encrypts a vector under the tenant's derived key.
func (s *Service) SealVector(tenantID string, vector []float32) (string, error) {
	key, err := s.keyring.TenantKey(tenantID)
	if err != nil {
		return "", err
	}
	return SealVector(key, vector)
}

// OpenVector decrypts a sealed vector, consulting the decrypted-vector
// cache first. Fails closed: an auth-tag mismatch returns
// ErrDecryptFailed, never corrupted plaintext.
func (s *Service) OpenVector(tenantID, embeddingID, ciphertext string) ([]float32, error) {
	if embeddingID != "" {
		if vector, ok := s.vectors.Get(tenantID, embeddingID); ok {
			return vector, nil
		}
	}

	key, err := s.keyring.TenantKey(tenantID)
	if err != nil {
		return nil, err
	}
	vector, err := OpenVector(key, ciphertext)
	if err != nil {
		return nil, err
	}

	if embeddingID != "" {
		s.vectors.Put(tenantID, embeddingID, vector)
	}
	return vector, nil
}

// InvalidateTenant drops the tenant's derived key and every cached
// decrypted vector. Used on rotation requests and offboarding; actual
// re-encryption of stored data is an explicit offline batch, never
// implicit.
func (s *Service) InvalidateTenant(tenantID string) {
	s.keyring.Invalidate(tenantID)
	s.vectors.InvalidateTenant(tenantID)
}
