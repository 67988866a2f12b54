package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastertrade/internal/cache"
)

// TestTokenBlacklistReadsThroughInstalledCache asserts the blacklist reads
// through whatever cache.Cache is installed via SetCache, rather than a
// package-private map — a revocation recorded against one cache handle must
// be visible to any other handle pointed at the same shared cache.
func TestTokenBlacklistReadsThroughInstalledCache(t *testing.T) {
	shared := cache.NewInMemory()
	SetCache(shared)
	defer SetCache(cache.NewInMemory())

	token := "session-token-1"
	require.False(t, IsTokenBlacklisted(token))

	BlacklistToken(token, time.Now().Add(time.Hour))
	require.True(t, IsTokenBlacklisted(token))

	// A second handle to the very same underlying cache sees the same
	// revocation immediately.
	require.True(t, func() bool {
		_, ok := shared.Get(blacklistKeyPrefix + token)
		return ok
	}())
}

// TestBlacklistTokenIgnoresAlreadyExpired asserts a token whose expiry has
// already passed is never written to the cache.
func TestBlacklistTokenIgnoresAlreadyExpired(t *testing.T) {
	shared := cache.NewInMemory()
	SetCache(shared)
	defer SetCache(cache.NewInMemory())

	token := "already-expired"
	BlacklistToken(token, time.Now().Add(-time.Minute))
	require.False(t, IsTokenBlacklisted(token))
}
