package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ppotrimba/blog/internal/models"
)

const articleColumns = `a.IdArticle, a.Title, a.Intro, a.Body, a.Date, a.ReadingTime, a.PhotoArticle, a.IdBadge, b.IdBadge, b.Name`

// query_GetArticleWithBadge returns every Article row with the given id whose
// badge exists. The id is always bound, never formatted into the text.
const query_GetArticleWithBadge = `SELECT ` + articleColumns + `
	FROM Article a
	INNER JOIN Badge b ON a.IdBadge = b.IdBadge
	WHERE a.IdArticle = ?`

const query_ListArticles = `SELECT ` + articleColumns + `
	FROM Article a
	LEFT JOIN Badge b ON a.IdBadge = b.IdBadge
	ORDER BY a.Date DESC, a.IdArticle DESC`

const query_FindDanglingArticles = `SELECT ` + articleColumns + `
	FROM Article a
	LEFT JOIN Badge b ON a.IdBadge = b.IdBadge
	WHERE b.IdBadge IS NULL
	ORDER BY a.IdArticle`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanArticle scans one row of articleColumns. Badge is nil for a LEFT JOIN miss.
func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		a           models.Article
		intro, body sql.NullString
		readingTime sql.NullInt64
		badgeID     sql.NullInt64
		badgeName   sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Title, &intro, &body, &a.DateString, &readingTime, &a.Photo, &a.BadgeID, &badgeID, &badgeName); err != nil {
		return nil, err
	}
	a.Intro = intro.String
	a.Body = body.String
	a.ReadingTime = int(readingTime.Int64)
	if badgeID.Valid {
		a.Badge = &models.Badge{ID: badgeID.Int64, Name: badgeName.String}
	}
	a.Normalize()
	return &a, nil
}

func (db *Database) queryArticles(ctx context.Context, query string, args ...interface{}) ([]*models.Article, error) {
	rows, err := retryableQueryContext(ctx, db.mainDB, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating article rows: %w", err)
	}
	return articles, nil
}

// GetArticleWithBadge returns all rows joined with their badge for the given id.
// An empty slice with nil error means not found.
func (db *Database) GetArticleWithBadge(ctx context.Context, id int64) ([]*models.Article, error) {
	if db.ArticleCache != nil {
		if cached, ok := db.ArticleCache.Get(id); ok {
			return cached, nil
		}
	}

	articles, err := db.queryArticles(ctx, query_GetArticleWithBadge, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}

	if db.ArticleCache != nil && len(articles) > 0 {
		db.ArticleCache.Put(id, articles)
	}
	return articles, nil
}

// GetArticlesByIDs returns joined articles in the order of ids. Ids without a
// visible row are skipped.
func (db *Database) GetArticlesByIDs(ctx context.Context, ids []int64) ([]*models.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := `SELECT ` + articleColumns + `
	FROM Article a
	INNER JOIN Badge b ON a.IdBadge = b.IdBadge
	WHERE a.IdArticle IN (` + placeholders + `)`

	articles, err := db.queryArticles(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles by ids: %w", err)
	}
	return models.OrderByIDs(articles, ids), nil
}

// ListArticles returns every article, badge or not, newest first
func (db *Database) ListArticles(ctx context.Context) ([]*models.Article, error) {
	articles, err := db.queryArticles(ctx, query_ListArticles)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// FindDanglingArticles returns articles whose badge does not exist.
// Those are invisible on the site.
func (db *Database) FindDanglingArticles(ctx context.Context) ([]*models.Article, error) {
	articles, err := db.queryArticles(ctx, query_FindDanglingArticles)
	if err != nil {
		return nil, fmt.Errorf("failed to find dangling articles: %w", err)
	}
	return articles, nil
}
