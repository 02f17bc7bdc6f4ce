package crypto

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// VectorCache is an LRU+TTL cache of decrypted vectors keyed by
// (tenant, embedding id). It avoids repeated decryption within one
// retrieval pass and offers per-tenant invalidation for key rotation
// or tenant offboarding.
type VectorCache struct {
	lru *expirable.LRU[string, []float32]
}

// NewVectorCache creates a cache with the given capacity and TTL.
func NewVectorCache(size int, ttl time.Duration) *VectorCache {
	return &VectorCache{
		lru: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

// Get returns the cached vector for (tenant, embedding id), if present.
func (c *VectorCache) Get(tenantID, embeddingID string) ([]float32, bool) {
	return c.lru.Get(cacheKey(tenantID, embeddingID))
}

// Put stores a decrypted vector.
func (c *VectorCache) Put(tenantID, embeddingID string, vector []float32) {
	c.lru.Add(cacheKey(tenantID, embeddingID), vector)
}

// InvalidateTenant drops every cached vector belonging to a tenant.
func (c *VectorCache) InvalidateTenant(tenantID string) {
	prefix := tenantID + "\x00"
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lru.Remove(key)
		}
	}
}

// Len returns the number of cached vectors.
func (c *VectorCache) Len() int {
	return c.lru.Len()
}

func cacheKey(tenantID, embeddingID string) string {
	return tenantID + "\x00" + embeddingID
}
