package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// AuthCache is a TTL cache of verified API keys, read lock-free via sync.Map.
//
// Expired entries are still served (stale-while-revalidate). Get reports
// NeedsRefresh to exactly one caller, which refreshes in the background, so
// only the first request for a key ever waits on the database and bcrypt.
type AuthCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	client     *ClientContext
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewAuthCache creates a cache with the given TTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl, now: time.Now}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Client       *ClientContext
	Hit          bool // a value was found, fresh or stale
	NeedsRefresh bool // the entry expired and this caller should refresh it
}

// Get looks up an API key. A miss returns the zero GetResult.
func (c *AuthCache) Get(apiKey string) GetResult {
	val, ok := c.store.Load(apiKey)
	if !ok {
		return GetResult{}
	}
	entry := val.(*cacheEntry)

	if c.now().Before(entry.expiresAt) {
		return GetResult{Client: entry.client, Hit: true}
	}
	return GetResult{
		Client:       entry.client,
		Hit:          true,
		NeedsRefresh: entry.refreshing.CompareAndSwap(false, true),
	}
}

// Set stores a client with a fresh TTL.
func (c *AuthCache) Set(apiKey string, client *ClientContext) {
	c.store.Store(apiKey, &cacheEntry{
		client:    client,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Delete removes one key.
func (c *AuthCache) Delete(apiKey string) {
	c.store.Delete(apiKey)
}

// InvalidateClient removes every key cached for clientID and returns how many
// were dropped. Called after a policy change or key rotation.
func (c *AuthCache) InvalidateClient(clientID string) int {
	n := 0
	c.store.Range(func(k, v any) bool {
		if v.(*cacheEntry).client.ClientID == clientID {
			c.store.Delete(k)
			n++
		}
		return true
	})
	return n
}
