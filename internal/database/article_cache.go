package database

import (
	"container/list"
	"sync"
	"time"

	"github.com/ppotrimba/blog/internal/models"
)

// ArticleCacheEntry represents the cached joined rows of one article id
type ArticleCacheEntry struct {
	ID       int64             `json:"id"`
	Articles []*models.Article `json:"articles"`
	CachedAt time.Time         `json:"cached_at"`
	size     int64
}

// ArticleCache provides LRU caching for articles
type ArticleCache struct {
	maxSize   int
	ttl       time.Duration
	cache     map[int64]*list.Element // id -> list element
	lruList   *list.List              // LRU ordering
	mutex     sync.Mutex
	hits      int64
	misses    int64
	evictions int64
	totalSize int64 // Approximate memory usage
}

// NewArticleCache creates a new article cache
func NewArticleCache(maxSize int, ttl time.Duration) *ArticleCache {
	return &ArticleCache{
		maxSize: maxSize,
		ttl:     ttl,
		cache:   make(map[int64]*list.Element),
		lruList: list.New(),
	}
}

// Get retrieves the rows of an article from cache
func (ac *ArticleCache) Get(id int64) ([]*models.Article, bool) {
	ac.mutex.Lock()
	defer ac.mutex.Unlock()

	elem, exists := ac.cache[id]
	if !exists {
		ac.misses++
		return nil, false
	}
	entry := elem.Value.(*ArticleCacheEntry)

	// rows can be edited in the database behind our back, so entries do expire
	if ac.ttl > 0 && time.Since(entry.CachedAt) > ac.ttl {
		ac.removeElement(elem)
		ac.misses++
		return nil, false
	}

	ac.lruList.MoveToFront(elem)
	ac.hits++
	return entry.Articles, true
}

// Put adds the rows of an article to cache
func (ac *ArticleCache) Put(id int64, articles []*models.Article) {
	ac.mutex.Lock()
	defer ac.mutex.Unlock()

	now := time.Now()
	size := estimateSize(articles)

	// If already exists, update it
	if elem, exists := ac.cache[id]; exists {
		entry := elem.Value.(*ArticleCacheEntry)
		ac.totalSize += size - entry.size
		entry.Articles = articles
		entry.CachedAt = now
		entry.size = size
		ac.lruList.MoveToFront(elem)
		return
	}

	entry := &ArticleCacheEntry{
		ID:       id,
		Articles: articles,
		CachedAt: now,
		size:     size,
	}
	ac.cache[id] = ac.lruList.PushFront(entry)
	ac.totalSize += size

	ac.evictIfNeeded()
}

// estimateSize is a rough approximation of the memory held by the rows
func estimateSize(articles []*models.Article) int64 {
	var size int64
	for _, a := range articles {
		size += int64(len(a.Title) + len(a.Intro) + len(a.Body) + len(a.Photo) + len(a.DateString) + 200)
	}
	return size
}

// evictIfNeeded removes old entries if cache is too large
func (ac *ArticleCache) evictIfNeeded() {
	for ac.lruList.Len() > ac.maxSize {
		elem := ac.lruList.Back()
		if elem == nil {
			return
		}
		ac.removeElement(elem)
		ac.evictions++
	}
}

// removeElement removes an element from cache
func (ac *ArticleCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*ArticleCacheEntry)
	ac.totalSize -= entry.size
	if ac.totalSize < 0 {
		ac.totalSize = 0
	}
	delete(ac.cache, entry.ID)
	ac.lruList.Remove(elem)
}

// Stats returns cache statistics
func (ac *ArticleCache) Stats() map[string]int64 {
	ac.mutex.Lock()
	defer ac.mutex.Unlock()

	return map[string]int64{
		"size":       int64(ac.lruList.Len()),
		"max_size":   int64(ac.maxSize),
		"hits":       ac.hits,
		"misses":     ac.misses,
		"evictions":  ac.evictions,
		"total_size": ac.totalSize,
	}
}

// Cleanup removes expired entries (call periodically)
func (ac *ArticleCache) Cleanup() {
	ac.mutex.Lock()
	defer ac.mutex.Unlock()

	if ac.ttl <= 0 {
		return
	}

	now := time.Now()
	var toRemove []*list.Element
	for elem := ac.lruList.Back(); elem != nil; elem = elem.Prev() {
		entry := elem.Value.(*ArticleCacheEntry)
		if now.Sub(entry.CachedAt) > ac.ttl {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		ac.removeElement(elem)
	}
}
