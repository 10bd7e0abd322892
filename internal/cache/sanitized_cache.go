package cache

import (
	"html/template"
	"log"
	"sync"
	"time"
)

// SanitizedBody is one cached sanitizer result
type SanitizedBody struct {
	HTML      template.HTML
	CreatedAt time.Time
	LastUsed  time.Time
	Size      int64
}

// SanitizedCache maps the content key of a raw body to its sanitized HTML.
// Keys are content digests, so an edited body never hits a stale entry.
type SanitizedCache struct {
	sanitizer   *Sanitizer
	cache       map[string]*SanitizedBody
	mutex       sync.RWMutex
	maxEntries  int           // Maximum number of bodies
	maxAge      time.Duration // Maximum age of entries
	cleanupTick time.Duration // How often to run cleanup
	stopCleanup chan struct{}
	stopOnce    sync.Once
	cachedSize  int64 // bytes of sanitized HTML held
	hits        int64
	misses      int64
}

// NewSanitizedCache creates a new cache with specified limits
func NewSanitizedCache(sanitizer *Sanitizer, maxEntries int, maxAge time.Duration) *SanitizedCache {
	if sanitizer == nil {
		sanitizer = NewSanitizer()
	}
	sc := &SanitizedCache{
		sanitizer:   sanitizer,
		cache:       make(map[string]*SanitizedBody),
		maxEntries:  maxEntries,
		maxAge:      maxAge,
		cleanupTick: 1 * time.Minute,
		stopCleanup: make(chan struct{}),
	}

	go sc.cleanupLoop()

	return sc
}

// Body returns the sanitized form of raw, from cache when possible
func (sc *SanitizedCache) Body(raw string) template.HTML {
	if raw == "" {
		return ""
	}
	key := ContentKey(raw)
	now := time.Now()

	sc.mutex.Lock()
	if entry, ok := sc.cache[key]; ok && (sc.maxAge <= 0 || now.Sub(entry.CreatedAt) <= sc.maxAge) {
		entry.LastUsed = now
		sc.hits++
		sc.mutex.Unlock()
		return entry.HTML
	}
	sc.misses++
	sc.mutex.Unlock()

	// sanitize outside the lock, concurrent misses on the same body just race to store
	clean := template.HTML(sc.sanitizer.Sanitize(raw))

	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if old, ok := sc.cache[key]; ok {
		sc.cachedSize -= old.Size
	}
	sc.cache[key] = &SanitizedBody{
		HTML:      clean,
		CreatedAt: now,
		LastUsed:  now,
		Size:      int64(len(clean)),
	}
	sc.cachedSize += int64(len(clean))
	for sc.maxEntries > 0 && len(sc.cache) > sc.maxEntries {
		sc.evictOldest()
	}
	return clean
}

// Stats returns cache statistics
func (sc *SanitizedCache) Stats() map[string]interface{} {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()

	totalRequests := sc.hits + sc.misses
	hitRate := 0.0
	if totalRequests > 0 {
		hitRate = float64(sc.hits) / float64(totalRequests) * 100
	}

	return map[string]interface{}{
		"entries":     len(sc.cache),
		"max_entries": sc.maxEntries,
		"max_age":     sc.maxAge.String(),
		"hits":        sc.hits,
		"misses":      sc.misses,
		"hit_rate":    hitRate,
		"size":        sc.cachedSize,
	}
}

// Stop shuts down the cleanup goroutine
func (sc *SanitizedCache) Stop() {
	sc.stopOnce.Do(func() { close(sc.stopCleanup) })
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (sc *SanitizedCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time
	for key, entry := range sc.cache {
		if oldestKey == "" || entry.LastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.LastUsed
		}
	}
	if oldestKey != "" {
		sc.cachedSize -= sc.cache[oldestKey].Size
		delete(sc.cache, oldestKey)
	}
}

func (sc *SanitizedCache) cleanupLoop() {
	ticker := time.NewTicker(sc.cleanupTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sc.cleanup()
		case <-sc.stopCleanup:
			return
		}
	}
}

// cleanup removes expired entries
func (sc *SanitizedCache) cleanup() {
	if sc.maxAge <= 0 {
		return
	}
	now := time.Now()

	sc.mutex.Lock()
	defer sc.mutex.Unlock()

	var removed int
	var delsize int64
	for key, entry := range sc.cache {
		if now.Sub(entry.CreatedAt) > sc.maxAge {
			delsize += entry.Size
			delete(sc.cache, key)
			removed++
		}
	}
	sc.cachedSize -= delsize
	if removed > 0 {
		log.Printf("[CACHE]: SanitizedCache cleanup removed %d entries (%d bytes)", removed, delsize)
	}
}
