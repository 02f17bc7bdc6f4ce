package crypto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyDerivationIsDeterministic(t *testing.T) {
	kr1, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)
	kr2, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)

	key1, err := kr1.TenantKey("firm-a")
	require.NoError(t, err)
	key2, err := kr2.TenantKey("firm-a")
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 32)
}

func TestKeyDerivationDiffersByTenant(t *testing.T) {
	kr, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)

	keyA, err := kr.TenantKey("firm-a")
	require.NoError(t, err)
	keyB, err := kr.TenantKey("firm-b")
	require.NoError(t, err)

	assert.NotEqual(t, keyA, keyB)
}

func TestKeyringRejectsEmptyInputs(t *testing.T) {
	_, err := NewKeyring("", time.Hour)
	require.ErrorIs(t, err, ErrMissingKey)

	kr, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)
	_, err = kr.TenantKey("")
	require.ErrorIs(t, err, ErrInvalidTenantID)
}

func TestKeyringInvalidate(t *testing.T) {
	kr, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)

	before, err := kr.TenantKey("firm-a")
	require.NoError(t, err)

	kr.Invalidate("firm-a")

	// Derivation is deterministic, so the re-derived key is identical;
	// invalidation only drops the cache entry.
	after, err := kr.TenantKey("firm-a")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestVectorRoundTrip(t *testing.T) {
	kr, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)
	key, err := kr.TenantKey("firm-a")
	require.NoError(t, err)

	vector := []float32{0.25, -1.5, 3.75, 0, 42.125}

	sealed, err := SealVector(key, vector)
	require.NoError(t, err)

	opened, err := OpenVector(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, vector, opened)
}

func TestCrossTenantDecryptionFailsClosed(t *testing.T) {
	kr, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)
	keyA, err := kr.TenantKey("firm-a")
	require.NoError(t, err)
	keyB, err := kr.TenantKey("firm-b")
	require.NoError(t, err)

	sealed, err := SealVector(keyA, []float32{1, 2, 3})
	require.NoError(t, err)

	opened, err := OpenVector(keyB, sealed)
	require.ErrorIs(t, err, ErrDecryptFailed)
	assert.Nil(t, opened)
}

func TestOpenRejectsMalformedInput(t *testing.T) {
	kr, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)
	key, err := kr.TenantKey("firm-a")
	require.NoError(t, err)

	for _, input := range []string{"", "!!!not-base64!!!", "c2hvcnQ="} {
		_, err := Open(key, input)
		assert.ErrorIs(t, err, ErrDecryptFailed, "input %q", input)
	}
}

func TestSealProducesFreshNonces(t *testing.T) {
	kr, err := NewKeyring("master-secret", time.Hour)
	require.NoError(t, err)
	key, err := kr.TenantKey("firm-a")
	require.NoError(t, err)

	first, err := Seal(key, []byte("same plaintext"))
	require.NoError(t, err)
	second, err := Seal(key, []byte("same plaintext"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVectorCache(t *testing.T) {
	cache := NewVectorCache(16, time.Minute)

	cache.Put("firm-a", "emb-1", []float32{1, 2})
	cache.Put("firm-a", "emb-2", []float32{3, 4})
	cache.Put("firm-b", "emb-1", []float32{5, 6})

	got, ok := cache.Get("firm-a", "emb-1")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2}, got)

	// Same embedding id under a different tenant is a distinct entry.
	got, ok = cache.Get("firm-b", "emb-1")
	require.True(t, ok)
	assert.Equal(t, []float32{5, 6}, got)

	cache.InvalidateTenant("firm-a")
	_, ok = cache.Get("firm-a", "emb-1")
	assert.False(t, ok)
	_, ok = cache.Get("firm-a", "emb-2")
	assert.False(t, ok)
	_, ok = cache.Get("firm-b", "emb-1")
	assert.True(t, ok)
}
