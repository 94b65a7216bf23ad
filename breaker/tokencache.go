package breaker

import (
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"
)

// Verdict is a positive auth validation result, the only kind of result
// ever cached (spec §4.6: "a negative result is never cached").
type Verdict struct {
	Valid       bool
	UserID      string
	Email       string
	Permissions []string
	CachedAt    time.Time
}

type tokenCacheEntry struct {
	verdict   Verdict
	expiresAt time.Time
}

// TokenCache stores positive validation verdicts keyed by an opaque
// fingerprint of the token, never the token itself, grounded on the
// teacher's cache.TokenCache/TTLCache and fallback.Handler.
type TokenCache struct {
	ttl time.Duration

	mu      sync.RWMutex
	entries map[string]tokenCacheEntry

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// DefaultTokenCacheTTL matches spec §4.6's "default 5 min".
const DefaultTokenCacheTTL = 5 * time.Minute

// NewTokenCache starts a cache with the given TTL and a background
// cleanup sweep, mirroring the teacher's cache.go cleanup goroutine.
func NewTokenCache(ttl time.Duration) *TokenCache {
	if ttl <= 0 {
		ttl = DefaultTokenCacheTTL
	}
	c := &TokenCache{
		ttl:         ttl,
		entries:     make(map[string]tokenCacheEntry),
		stopCleanup: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Fingerprint derives an opaque, non-reversible cache key for a raw
// token using SHA3-256, so the cache never stores tokens in the clear.
func Fingerprint(token string) string {
	sum := sha3.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Put stores a positive verdict. Negative verdicts are silently
// rejected here, enforcing the "never cache invalid" rule at the cache
// layer itself rather than trusting every call site to remember it.
func (c *TokenCache) Put(token string, verdict Verdict) {
	if !verdict.Valid {
		return
	}
	verdict.CachedAt = time.Now().UTC()
	key := Fingerprint(token)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = tokenCacheEntry{verdict: verdict, expiresAt: time.Now().Add(c.ttl)}
}

// Get returns the cached verdict for token, if present and unexpired.
func (c *TokenCache) Get(token string) (Verdict, bool) {
	key := Fingerprint(token)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return Verdict{}, false
	}
	return entry.verdict, true
}

// Invalidate purges a single token's cached verdict, used by logout.
func (c *TokenCache) Invalidate(token string) {
	key := Fingerprint(token)
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TokenCache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCleanup:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *TokenCache) sweepExpired() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

// Close stops the background cleanup goroutine. Idempotent.
func (c *TokenCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
}
