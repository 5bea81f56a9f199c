package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache is a TTL cache of verified admin keys, keyed by the SHA-256 of
// the key so plaintext never sits in the map.
//
// Stale-while-revalidate: an expired entry is still returned, and exactly one
// caller is told to refresh it in the background.
type AuthCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	admin      *Admin
	expiresAt  time.Time
	refreshing atomic.Bool
}

func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl, now: time.Now}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Admin        *Admin
	Hit          bool // fresh or stale
	NeedsRefresh bool // stale, and this caller won the refresh
}

func cacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// Get looks up a key.
//
//   - Fresh hit:  {Admin, Hit=true,  NeedsRefresh=false}
//   - Stale hit:  {Admin, Hit=true,  NeedsRefresh=true once, then false}
//   - Miss:       {nil,   Hit=false, NeedsRefresh=false}
func (c *AuthCache) Get(apiKey string) GetResult {
	val, ok := c.store.Load(cacheKey(apiKey))
	if !ok {
		return GetResult{}
	}
	entry := val.(*cacheEntry)

	if c.now().Before(entry.expiresAt) {
		return GetResult{Admin: entry.admin, Hit: true}
	}
	return GetResult{
		Admin:        entry.admin,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

func (c *AuthCache) Set(apiKey string, admin *Admin) {
	c.store.Store(cacheKey(apiKey), &cacheEntry{
		admin:     admin,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Release clears the refreshing flag so a later stale read can retry.
func (c *AuthCache) Release(apiKey string) {
	if val, ok := c.store.Load(cacheKey(apiKey)); ok {
		val.(*cacheEntry).refreshing.Store(false)
	}
}

func (c *AuthCache) Delete(apiKey string) {
	c.store.Delete(cacheKey(apiKey))
}
