// Package cache holds evaluated smart folder results between refreshes.
package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/solatis/smartfolder/internal/types"
)

/*
 * Result cache.
 *
 * Entries are JSON snapshots: Put serializes the result once and Get decodes
 * a fresh copy, so no caller can mutate what another caller reads. Numbers
 * in untyped fields (SortValue) decode as json.Number, which is the form the
 * engine stores them in, so a snapshot reads back equal to what was put. Entries
 * are swapped into a sync.Map and never modified in place, which keeps reads
 * lock-free.
 *
 * Keys carry the folder generation, so a saved rule change makes every older
 * entry unreachable. Put sweeps those stale generations for the folder.
 *
 * TTL is taken from the folder settings at read time and expired entries are
 * evicted on the read that notices them.
 */

type entry struct {
	payload  []byte
	storedAt time.Time
}

// ResultCache stores SmartFolderResult snapshots keyed by types.CacheKey.
type ResultCache struct {
	entries sync.Map // types.CacheKey -> *entry
	now     func() time.Time
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithClock replaces time.Now for TTL checks.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// New creates an empty cache.
func New(opts ...Option) *ResultCache {
	c := &ResultCache{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func enabled(settings types.FolderSettings) bool {
	return settings.CacheResults && settings.CacheDuration > 0
}

// Get returns a private copy of the cached result for key. A disabled cache
// always misses. Entries older than the folder's cache duration are evicted.
func (c *ResultCache) Get(key types.CacheKey, settings types.FolderSettings) (*types.SmartFolderResult, bool, error) {
	if !enabled(settings) {
		return nil, false, nil
	}
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false, nil
	}
	e := v.(*entry)
	if c.now().Sub(e.storedAt) > settings.CacheTTL() {
		c.entries.CompareAndDelete(key, e)
		return nil, false, nil
	}

	var result types.SmartFolderResult
	dec := json.NewDecoder(bytes.NewReader(e.payload))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		c.entries.CompareAndDelete(key, e)
		return nil, false, fmt.Errorf("decode cached result for folder %s: %w", key.FolderID, err)
	}
	return &result, true, nil
}

// Put stores a snapshot of result. It is a no-op when caching is disabled.
func (c *ResultCache) Put(key types.CacheKey, settings types.FolderSettings, result *types.SmartFolderResult) error {
	if !enabled(settings) {
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result for folder %s: %w", key.FolderID, err)
	}
	c.entries.Store(key, &entry{payload: payload, storedAt: c.now()})

	c.entries.Range(func(k, _ any) bool {
		other := k.(types.CacheKey)
		if other.FolderID == key.FolderID && other.Generation < key.Generation {
			c.entries.Delete(other)
		}
		return true
	})
	return nil
}

// Invalidate drops every entry for folderID.
func (c *ResultCache) Invalidate(folderID types.FolderID) {
	c.entries.Range(func(k, _ any) bool {
		if k.(types.CacheKey).FolderID == folderID {
			c.entries.Delete(k)
		}
		return true
	})
}

// Len reports the number of stored entries, expired ones included.
func (c *ResultCache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
