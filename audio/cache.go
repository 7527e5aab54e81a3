package audio

import (
	"sync"
	"time"

	"github.com/sproutplay/audiokit/content"
	"github.com/sproutplay/audiokit/parameter"
)

// cacheEntry is the bookkeeping record for one resolved payload
type cacheEntry struct {
	key          string
	payload      []byte
	size         int64
	duration     time.Duration
	createdAt    time.Time
	lastAccess   time.Time
	accessCount  int64
	language     content.Language
	highPriority bool
}

// frequency is accesses per hour of entry age, used as the eviction
// tie-break when entry ages differ substantially
func (e *cacheEntry) frequency(now time.Time) float64 {
	ageHours := now.Sub(e.createdAt).Hours()
	if ageHours < 1.0/3600 {
		ageHours = 1.0 / 3600
	}
	return float64(e.accessCount) / ageHours
}

// CacheStats is a snapshot of cache usage
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	SizeBytes int64
	ItemCount int
}

// HitRatio returns hits/(hits+misses), 0 before any lookups
func (s CacheStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// cacheMeta carries put-time metadata
type cacheMeta struct {
	duration     time.Duration
	language     content.Language
	highPriority bool
}

// soundCache is a bounded store of resolved payloads. One mutex
// serializes all mutation so size accounting stays exact; loading and
// decoding happen outside the lock.
//
// Invariant: size <= budget after every put and evict.
type soundCache struct {
	mu      sync.Mutex
	budget  int64
	entries map[string]*cacheEntry
	size    int64
	hits    uint64
	misses  uint64
}

func newSoundCache(budget int64) *soundCache {
	if budget <= 0 {
		budget = parameter.DefaultCacheBudget
	}
	return &soundCache{
		budget:  budget,
		entries: make(map[string]*cacheEntry),
	}
}

// get returns the cached payload and records the access
func (c *soundCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	e.lastAccess = time.Now()
	e.accessCount++
	return e.payload, true
}

// put stores payload under key, evicting as needed to stay within
// budget before returning. A payload larger than the whole budget is
// refused.
func (c *soundCache) put(key string, payload []byte, meta cacheMeta) error {
	size := int64(len(payload))
	if size > c.budget {
		return newError(CodeInsufficientMemory, "", ErrOverBudget)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[key]; ok {
		c.size -= old.size
		delete(c.entries, key)
	}

	if c.size+size > c.budget {
		c.evictLocked(c.size + size - c.budget)
		if c.size+size > c.budget {
			return newError(CodeInsufficientMemory, "", ErrOverBudget)
		}
	}

	now := time.Now()
	c.entries[key] = &cacheEntry{
		key:          key,
		payload:      payload,
		size:         size,
		duration:     meta.duration,
		createdAt:    now,
		lastAccess:   now,
		accessCount:  1,
		language:     meta.language,
		highPriority: meta.highPriority,
	}
	c.size += size
	return nil
}

// evictLocked frees at least need bytes. Victims are least-recently-
// used entries that are not high-priority; when candidate ages differ
// by more than parameter.CacheAgeSpread the lower access frequency
// loses instead. High-priority entries fall only when nothing else is
// left. Caller holds the lock.
func (c *soundCache) evictLocked(need int64) int64 {
	var freed int64
	now := time.Now()

	for freed < need {
		victim := c.pickVictimLocked(now, false)
		if victim == nil {
			victim = c.pickVictimLocked(now, true)
		}
		if victim == nil {
			break
		}
		delete(c.entries, victim.key)
		c.size -= victim.size
		freed += victim.size
	}
	return freed
}

// pickVictimLocked selects the next entry to drop among entries whose
// highPriority flag matches includeHigh
func (c *soundCache) pickVictimLocked(now time.Time, includeHigh bool) *cacheEntry {
	var victim *cacheEntry
	for _, e := range c.entries {
		if e.highPriority != includeHigh {
			continue
		}
		if victim == nil || worseVictim(e, victim, now) {
			victim = e
		}
	}
	return victim
}

// worseVictim reports whether a should be evicted before b
func worseVictim(a, b *cacheEntry, now time.Time) bool {
	ageSpread := a.createdAt.Sub(b.createdAt)
	if ageSpread < 0 {
		ageSpread = -ageSpread
	}
	if ageSpread >= parameter.CacheAgeSpread {
		return a.frequency(now) < b.frequency(now)
	}
	return a.lastAccess.Before(b.lastAccess)
}

// clear removes entries and returns bytes freed. With keepRecent only
// entries idle beyond the staleness threshold are dropped.
func (c *soundCache) clear(keepRecent bool, staleness time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var freed int64
	cutoff := time.Now().Add(-staleness)
	for key, e := range c.entries {
		if keepRecent && e.lastAccess.After(cutoff) {
			continue
		}
		delete(c.entries, key)
		c.size -= e.size
		freed += e.size
	}
	return freed
}

// stats returns a usage snapshot
func (c *soundCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		SizeBytes: c.size,
		ItemCount: len(c.entries),
	}
}
