package database

import (
	"context"
	"fmt"
)

const query_RecordView = `INSERT INTO ArticleViews (IdArticle, Views, LastViewed)
	VALUES (?, 1, CURRENT_TIMESTAMP)
	ON CONFLICT(IdArticle) DO UPDATE SET Views = Views + 1, LastViewed = CURRENT_TIMESTAMP`

// Articles never viewed still rank (views 0) so a fresh site has a sidebar.
const query_TopArticleIDs = `SELECT a.IdArticle
	FROM Article a
	INNER JOIN Badge b ON a.IdBadge = b.IdBadge
	LEFT JOIN ArticleViews v ON v.IdArticle = a.IdArticle
	ORDER BY COALESCE(v.Views, 0) DESC, a.Date DESC, a.IdArticle DESC
	LIMIT ?`

// RecordView increments the view counter of an article
func (db *Database) RecordView(ctx context.Context, articleID int64) error {
	if _, err := retryableExecContext(ctx, db.mainDB, query_RecordView, articleID); err != nil {
		return fmt.Errorf("failed to record view for article %d: %w", articleID, err)
	}
	return nil
}

// TopArticleIDs returns up to limit visible article ids, most viewed first
func (db *Database) TopArticleIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := retryableQueryContext(ctx, db.mainDB, query_TopArticleIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top articles: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan top article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating top article rows: %w", err)
	}
	return ids, nil
}

// GetViews returns the recorded views of an article, 0 if never viewed
func (db *Database) GetViews(ctx context.Context, articleID int64) (int64, error) {
	var views int64
	err := retryableQueryRowScanContext(ctx, db.mainDB,
		`SELECT COALESCE((SELECT Views FROM ArticleViews WHERE IdArticle = ?), 0)`,
		[]interface{}{articleID}, &views)
	if err != nil {
		return 0, fmt.Errorf("failed to get views for article %d: %w", articleID, err)
	}
	return views, nil
}
