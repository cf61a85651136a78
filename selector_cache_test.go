package toolflow

import (
	"fmt"
	"testing"
	"time"
)

func TestCacheKey(t *testing.T) {
	a := cacheKey(StrategyKeyword, "task one")
	b := cacheKey(StrategyKeyword, "task two")
	c := cacheKey(StrategyHybrid, "task one")

	if a == b {
		t.Error("different tasks must produce different keys")
	}
	if a == c {
		t.Error("different strategies must produce different keys")
	}
	if a != cacheKey(StrategyKeyword, "task one") {
		t.Error("keys must be deterministic")
	}
}

func TestSelectionCache_GetPutRoundTrip(t *testing.T) {
	cache := newSelectionCache(time.Minute, 10)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	names := []string{"a", "b"}

	sel := &Selection{
		SelectedTools: []string{"a"},
		Scores:        map[string]float64{"a": 0.9, "b": 0.1},
		Reasons:       map[string]string{"a": "match"},
		Strategy:      StrategyKeyword,
	}
	key := cacheKey(StrategyKeyword, "task")
	cache.put(key, sel, names, now)

	got, ok := cache.get(key, names, now.Add(time.Second))
	if !ok {
		t.Fatal("expected hit")
	}
	if !got.Cache.Hit || got.Cache.StoredAt != now {
		t.Errorf("unexpected cache info %+v", got.Cache)
	}
	if got.SelectedTools[0] != "a" || got.Scores["a"] != 0.9 {
		t.Errorf("unexpected cached selection %+v", got)
	}

	// The returned selection is a copy.
	got.Scores["a"] = 0
	again, _ := cache.get(key, names, now.Add(time.Second))
	if again.Scores["a"] != 0.9 {
		t.Error("cache must hand out copies")
	}
}

func TestSelectionCache_NameSetMismatch(t *testing.T) {
	cache := newSelectionCache(time.Minute, 10)
	now := time.Now()
	key := cacheKey(StrategyKeyword, "task")
	cache.put(key, &Selection{}, []string{"a", "b"}, now)

	if _, ok := cache.get(key, []string{"a"}, now); ok {
		t.Error("fewer tools must miss")
	}
	// The mismatch also evicts the entry.
	if _, ok := cache.get(key, []string{"a", "b"}, now); ok {
		t.Error("mismatch must evict the entry")
	}
}

func TestSelectionCache_Expiry(t *testing.T) {
	cache := newSelectionCache(time.Minute, 10)
	now := time.Now()
	names := []string{"a"}
	key := cacheKey(StrategyKeyword, "task")
	cache.put(key, &Selection{}, names, now)

	if _, ok := cache.get(key, names, now.Add(2*time.Minute)); ok {
		t.Error("expected miss after TTL")
	}
}

func TestSelectionCache_CapacityEviction(t *testing.T) {
	cache := newSelectionCache(time.Hour, 8)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	names := []string{"a"}

	// Fill to capacity with increasing timestamps.
	for i := 0; i < 8; i++ {
		key := cacheKey(StrategyKeyword, fmt.Sprintf("task-%d", i))
		cache.put(key, &Selection{}, names, base.Add(time.Duration(i)*time.Second))
	}

	// The next put evicts the oldest entries down to 75% of capacity.
	cache.put(cacheKey(StrategyKeyword, "task-8"), &Selection{}, names, base.Add(8*time.Second))

	if _, ok := cache.get(cacheKey(StrategyKeyword, "task-0"), names, base.Add(9*time.Second)); ok {
		t.Error("oldest entry should have been evicted")
	}
	if _, ok := cache.get(cacheKey(StrategyKeyword, "task-7"), names, base.Add(9*time.Second)); !ok {
		t.Error("newest pre-eviction entry should survive")
	}
	if _, ok := cache.get(cacheKey(StrategyKeyword, "task-8"), names, base.Add(9*time.Second)); !ok {
		t.Error("new entry should be present")
	}
}

func TestSelectionCache_ExpiredPurgedBeforeCapacity(t *testing.T) {
	cache := newSelectionCache(time.Minute, 8)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	names := []string{"a"}

	for i := 0; i < 8; i++ {
		key := cacheKey(StrategyKeyword, fmt.Sprintf("task-%d", i))
		cache.put(key, &Selection{}, names, base)
	}

	// All existing entries are expired at put time; capacity eviction is
	// unnecessary and the fresh entry stands alone.
	later := base.Add(5 * time.Minute)
	cache.put(cacheKey(StrategyKeyword, "fresh"), &Selection{}, names, later)

	if _, ok := cache.get(cacheKey(StrategyKeyword, "fresh"), names, later); !ok {
		t.Error("fresh entry should be present")
	}
	if _, ok := cache.get(cacheKey(StrategyKeyword, "task-0"), names, later); ok {
		t.Error("expired entry should have been purged")
	}
}

func TestSelectionCache_Defaults(t *testing.T) {
	cache := newSelectionCache(0, 0)
	if cache.ttl != defaultCacheTTL {
		t.Errorf("expected default TTL %s, got %s", defaultCacheTTL, cache.ttl)
	}
	if cache.capacity != defaultCacheCapacity {
		t.Errorf("expected default capacity %d, got %d", defaultCacheCapacity, cache.capacity)
	}
}
