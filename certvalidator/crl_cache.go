package certvalidator

import (
	"crypto/x509"
	"math/big"
	"sync"
	"time"
)

// DefaultCRLCacheSize is the default LRU capacity of CRLCache, one CRL per issuer.
const DefaultCRLCacheSize = 100

// DefaultCRLRefreshThreshold is how close to next_update a cached CRL must
// be before CRLUpdater treats it as due for refresh.
const DefaultCRLRefreshThreshold = 3600 * time.Second

// crlCacheEntry is one issuer's cached CRL plus an LRU recency marker.
type crlCacheEntry struct {
	crl      *x509.RevocationList
	lastUsed time.Time
}

// CRLCache is a bounded, issuer-keyed cache of validated CRLs. At most one
// CRL is ever held per issuer: Put replaces whatever was cached for that
// issuer, and refuses to regress the CRL number. All operations are safe
// for concurrent use by multiple validations.
type CRLCache struct {
	mu      sync.Mutex
	entries map[string]*crlCacheEntry
	maxSize int
	now     func() time.Time
}

// NewCRLCache creates a CRLCache with the given capacity. A non-positive
// size falls back to DefaultCRLCacheSize.
func NewCRLCache(maxSize int) *CRLCache {
	if maxSize <= 0 {
		maxSize = DefaultCRLCacheSize
	}
	return &CRLCache{
		entries: make(map[string]*crlCacheEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

func crlCacheKey(issuerDN string) string {
	return issuerDN
}

// Get returns the cached CRL for issuerDN, if any.
func (c *CRLCache) Get(issuerDN string) (*x509.RevocationList, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[crlCacheKey(issuerDN)]
	if !ok {
		return nil, false
	}
	entry.lastUsed = c.now()
	return entry.crl, true
}

// Put stores crl for issuerDN, replacing any previous entry for that issuer.
// A crl whose CRLNumber is strictly less than the currently cached one is a
// regression and is rejected (the cached CRL is left untouched); Put
// reports whether the store actually happened.
func (c *CRLCache) Put(issuerDN string, crl *x509.RevocationList) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := crlCacheKey(issuerDN)
	if existing, ok := c.entries[key]; ok {
		existingNum := CRLNumberOf(existing.crl)
		newNum := CRLNumberOf(crl)
		if existingNum != nil && newNum != nil && newNum.Cmp(existingNum) < 0 {
			return false
		}
	} else if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	c.entries[key] = &crlCacheEntry{crl: crl, lastUsed: c.now()}
	return true
}

// evictLRU drops the least-recently-used entry. Caller holds c.mu.
func (c *CRLCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time
	first := true
	for k, v := range c.entries {
		if first || v.lastUsed.Before(oldestTime) {
			oldestKey = k
			oldestTime = v.lastUsed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}

// IsExpiringSoon reports whether issuerDN has no cached CRL, the cached CRL
// has no NextUpdate, or NextUpdate is within threshold of now.
func (c *CRLCache) IsExpiringSoon(issuerDN string, threshold time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[crlCacheKey(issuerDN)]
	if !ok {
		return true
	}
	if entry.crl.NextUpdate.IsZero() {
		return true
	}
	return !entry.crl.NextUpdate.After(c.now().Add(threshold))
}

// RemoveExpired drops every entry whose NextUpdate is at or before now, or
// missing entirely, and returns the count removed.
func (c *CRLCache) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, v := range c.entries {
		if v.crl.NextUpdate.IsZero() || !v.crl.NextUpdate.After(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of issuers currently cached.
func (c *CRLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CRLNumberOf returns the CRL's crlNumber extension value, or nil if absent.
func CRLNumberOf(crl *x509.RevocationList) *big.Int {
	if crl == nil {
		return nil
	}
	return crl.Number
}
