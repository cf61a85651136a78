package toolflow

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"
)

const (
	defaultCacheTTL      = 5 * time.Minute
	defaultCacheCapacity = 100
)

// cacheEntry snapshots one selection result together with the conditions
// under which it may be reused.
type cacheEntry struct {
	selection Selection
	storedAt  time.Time
	toolNames map[string]struct{}
}

// selectionCache reuses selection results keyed by (strategy, task hash).
// An entry is valid only while it is within its TTL and the catalog's
// tool-name set is exactly the set snapshotted at write time; anything
// stale silently forces recomputation.
type selectionCache struct {
	mu       sync.Mutex
	entries  map[string]*cacheEntry
	ttl      time.Duration
	capacity int
}

func newSelectionCache(ttl time.Duration, capacity int) *selectionCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if capacity <= 0 {
		capacity = defaultCacheCapacity
	}
	return &selectionCache{
		entries:  make(map[string]*cacheEntry),
		ttl:      ttl,
		capacity: capacity,
	}
}

// cacheKey combines the strategy with a hash of the task text.
func cacheKey(strategy Strategy, task string) string {
	sum := sha256.Sum256([]byte(task))
	return string(strategy) + ":" + hex.EncodeToString(sum[:])
}

// get returns a copy of the cached selection if the entry is fresh and
// the tool-name set still matches.
func (c *selectionCache) get(key string, names []string, now time.Time) (*Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if now.Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	if !sameNameSet(entry.toolNames, names) {
		delete(c.entries, key)
		return nil, false
	}

	out := cloneSelection(&entry.selection)
	out.Cache = CacheInfo{Hit: true, Key: key, StoredAt: entry.storedAt}
	return out, true
}

// put stores a selection snapshot and returns the write timestamp.
func (c *selectionCache) put(key string, sel *Selection, names []string, now time.Time) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictLocked(now)

	nameSet := make(map[string]struct{}, len(names))
	for _, n := range names {
		nameSet[n] = struct{}{}
	}
	c.entries[key] = &cacheEntry{
		selection: *cloneSelection(sel),
		storedAt:  now,
		toolNames: nameSet,
	}
	return now
}

func (c *selectionCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// evictLocked first purges expired entries; if the cache is still at or
// over capacity it drops the oldest entries until at 75% of capacity.
func (c *selectionCache) evictLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.storedAt) > c.ttl {
			delete(c.entries, key)
		}
	}
	if len(c.entries) < c.capacity {
		return
	}

	type aged struct {
		key      string
		storedAt time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		all = append(all, aged{key: key, storedAt: entry.storedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].storedAt.Before(all[j].storedAt) })

	target := c.capacity * 3 / 4
	for i := 0; len(c.entries) > target && i < len(all); i++ {
		delete(c.entries, all[i].key)
	}
}

// sameNameSet reports set equality between the snapshot and the names.
func sameNameSet(set map[string]struct{}, names []string) bool {
	if len(set) != len(names) {
		return false
	}
	for _, n := range names {
		if _, ok := set[n]; !ok {
			return false
		}
	}
	return true
}

func cloneSelection(sel *Selection) *Selection {
	out := &Selection{
		SelectedTools: append([]string(nil), sel.SelectedTools...),
		Scores:        make(map[string]float64, len(sel.Scores)),
		Reasons:       make(map[string]string, len(sel.Reasons)),
		Strategy:      sel.Strategy,
		Cache:         sel.Cache,
	}
	for k, v := range sel.Scores {
		out.Scores[k] = v
	}
	for k, v := range sel.Reasons {
		out.Reasons[k] = v
	}
	return out
}
