// Package popular tracks article views and builds the "most popular" sidebar.
package popular

import (
	"context"
	"fmt"

	"github.com/ppotrimba/blog/internal/models"
)

// Tracker records article views and ranks article ids by them.
// *database.Database, *pgdb.Store and *RedisTracker implement it.
type Tracker interface {
	RecordView(ctx context.Context, articleID int64) error
	TopArticleIDs(ctx context.Context, limit int) ([]int64, error)
}

// Store resolves ranked ids into visible articles.
type Store interface {
	TopArticleIDs(ctx context.Context, limit int) ([]int64, error)
	GetArticlesByIDs(ctx context.Context, ids []int64) ([]*models.Article, error)
}

// Sidebar returns up to limit visible articles, most viewed first.
// When the tracker knows fewer than limit articles (a fresh Redis key) the
// remainder is filled from the store's own ranking, which includes articles
// never viewed.
func Sidebar(ctx context.Context, tracker Tracker, store Store, limit int) ([]*models.Article, error) {
	if limit <= 0 || store == nil {
		return nil, nil
	}

	var ids []int64
	if tracker != nil {
		top, err := tracker.TopArticleIDs(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to rank popular articles: %w", err)
		}
		ids = top
	}

	articles, err := store.GetArticlesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load popular articles: %w", err)
	}
	if len(articles) >= limit {
		return articles[:limit], nil
	}

	// dangling or deleted ids drop out above, so ask for enough to refill
	fill, err := store.TopArticleIDs(ctx, limit+len(articles))
	if err != nil {
		return nil, fmt.Errorf("failed to rank popular articles: %w", err)
	}
	seen := make(map[int64]bool, len(articles))
	for _, a := range articles {
		seen[a.ID] = true
	}
	var missing []int64
	for _, id := range fill {
		if !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	if len(missing) == 0 {
		return articles, nil
	}
	more, err := store.GetArticlesByIDs(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("failed to load popular articles: %w", err)
	}
	articles = append(articles, more...)
	if len(articles) > limit {
		articles = articles[:limit]
	}
	return articles, nil
}
