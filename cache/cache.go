// Package cache memoizes translations by a fingerprint of the source text
// and language pair. It is a pure performance layer: a miss always falls
// through to the backend.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
)

// AutoLang stands in for an unspecified source language.
const AutoLang = "auto"

// Key returns the fingerprint of (sourceLang or "auto", targetLang, text).
func Key(text, sourceLang, targetLang string) string {
	if sourceLang == "" {
		sourceLang = AutoLang
	}
	h := sha256.New()
	h.Write([]byte(sourceLang))
	h.Write([]byte{0})
	h.Write([]byte(targetLang))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Stats is a snapshot of cache usage.
type Stats struct {
	Entries int
	Hits    int64
	Misses  int64
}

// Cache is an unbounded in-memory translation cache, safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]string

	hits   atomic.Int64
	misses atomic.Int64
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]string)}
}

// Get looks up a previous translation of text.
func (c *Cache) Get(text, sourceLang, targetLang string) (string, bool) {
	return c.GetKey(Key(text, sourceLang, targetLang))
}

// GetKey looks up a translation by a precomputed Key.
func (c *Cache) GetKey(key string) (string, bool) {
	c.mu.RLock()
	v, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Put records a translation of text.
func (c *Cache) Put(text, sourceLang, targetLang, translation string) {
	c.PutKey(Key(text, sourceLang, targetLang), translation)
}

// PutKey records a translation under a precomputed Key.
func (c *Cache) PutKey(key, translation string) {
	c.mu.Lock()
	c.entries[key] = translation
	c.mu.Unlock()
}

// Clear drops all entries and resets the counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]string)
	c.mu.Unlock()
	c.hits.Store(0)
	c.misses.Store(0)
}

// Len returns the number of cached translations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the current entry count and hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Entries: c.Len(),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
}
