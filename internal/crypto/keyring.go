// Package crypto implements the per-tenant encryption layer.
//
// Tenant keys are derived from a master secret via HKDF-SHA256 and cached
// with a TTL. Vectors are sealed with AES-256-GCM; decryption verifies the
// auth tag and fails closed. A decrypted-vector LRU avoids repeated
// decryption within a retrieval pass.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/crypto/hkdf"
)

const (
	// keySize is the derived key length (AES-256).
	keySize = 32

	// keyCacheSize bounds the number of cached tenant keys.
	keyCacheSize = 1024
)

// hkdfSalt is a fixed extraction salt. Changing it invalidates every
// previously written ciphertext, so it is a constant, not configuration.
var hkdfSalt = []byte("lexrag.tenant.key.v1")

var (
	// ErrMissingKey indicates key derivation is not possible.
	ErrMissingKey = errors.New("master secret not configured")

	// ErrInvalidTenantID indicates an empty tenant identifier.
	ErrInvalidTenantID = errors.New("tenant id required for key derivation")
)

// Keyring derives and caches per-tenant symmetric keys.
//
// Derivation is deterministic in (master secret, tenant id); keys are never
// persisted. Invalidate drops the cache entry only - re-encrypting existing
// tenant data is an explicit offline operation, never implicit.
type Keyring struct {
	masterSecret []byte
	cache        *expirable.LRU[string, []byte]
}

// NewKeyring creates a keyring over the master secret with the given
// key-cache TTL.
func NewKeyring(masterSecret string, ttl time.Duration) (*Keyring, error) {
	if masterSecret == "" {
		return nil, ErrMissingKey
	}
	return &Keyring{
		masterSecret: []byte(masterSecret),
		cache:        expirable.NewLRU[string, []byte](keyCacheSize, nil, ttl),
	}, nil
}

// TenantKey returns the derived key for a tenant, from cache when fresh.
func (k *Keyring) TenantKey(tenantID string) ([]byte, error) {
	if tenantID == "" {
		return nil, ErrInvalidTenantID
	}
	if key, ok := k.cache.Get(tenantID); ok {
		return key, nil
	}

	key, err := k.derive(tenantID)
	if err != nil {
		return nil, err
	}
	k.cache.Add(tenantID, key)
	return key, nil
}

// Invalidate drops a tenant's cached key. The next TenantKey call derives
// it again from the master secret.
func (k *Keyring) Invalidate(tenantID string) {
	k.cache.Remove(tenantID)
}

// derive runs HKDF extract-then-expand over the master secret with
// tenant-specific info bytes.
func (k *Keyring) derive(tenantID string) ([]byte, error) {
	info := []byte("tenant:" + tenantID)
	reader := hkdf.New(sha256.New, k.masterSecret, hkdfSalt, info)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("deriving tenant key: %w", err)
	}
	return key, nil
}
