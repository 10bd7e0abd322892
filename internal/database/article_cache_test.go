package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ppotrimba/blog/internal/models"
)

func TestArticleCacheLRU(t *testing.T) {
	ac := NewArticleCache(2, time.Hour)
	ac.Put(1, []*models.Article{{ID: 1, Title: "one"}})
	ac.Put(2, []*models.Article{{ID: 2, Title: "two"}})

	// touch 1 so 2 becomes the oldest
	_, ok := ac.Get(1)
	assert.True(t, ok)

	ac.Put(3, []*models.Article{{ID: 3, Title: "three"}})

	_, ok = ac.Get(2)
	assert.False(t, ok, "least recently used entry is evicted")
	got, ok := ac.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "one", got[0].Title)

	stats := ac.Stats()
	assert.Equal(t, int64(2), stats["size"])
	assert.Equal(t, int64(1), stats["evictions"])
}

func TestArticleCacheUpdate(t *testing.T) {
	ac := NewArticleCache(10, time.Hour)
	ac.Put(1, []*models.Article{{ID: 1, Title: "old"}})
	ac.Put(1, []*models.Article{{ID: 1, Title: "new"}})

	got, ok := ac.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "new", got[0].Title)
	assert.Equal(t, int64(1), ac.Stats()["size"])
}

func TestArticleCacheExpiry(t *testing.T) {
	ac := NewArticleCache(10, time.Millisecond)
	ac.Put(1, []*models.Article{{ID: 1}})
	ac.Put(2, []*models.Article{{ID: 2}})
	time.Sleep(5 * time.Millisecond)

	_, ok := ac.Get(1)
	assert.False(t, ok)

	ac.Cleanup()
	assert.Equal(t, int64(0), ac.Stats()["size"])
	assert.Equal(t, int64(0), ac.Stats()["total_size"])
}
