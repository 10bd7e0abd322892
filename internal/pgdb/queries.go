package pgdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ppotrimba/blog/internal/models"
)

const articleColumns = `a.id_article, a.title, a.intro, a.body, a.date, a.reading_time, a.photo_article, a.id_badge, b.id_badge, b.name`

const (
	queryGetArticleWithBadge = `SELECT ` + articleColumns + `
		FROM article a
		INNER JOIN badge b ON a.id_badge = b.id_badge
		WHERE a.id_article = $1`

	queryGetArticlesByIDs = `SELECT ` + articleColumns + `
		FROM article a
		INNER JOIN badge b ON a.id_badge = b.id_badge
		WHERE a.id_article = ANY($1)`

	queryListArticles = `SELECT ` + articleColumns + `
		FROM article a
		LEFT JOIN badge b ON a.id_badge = b.id_badge
		ORDER BY a.date DESC, a.id_article DESC`

	queryFindDanglingArticles = `SELECT ` + articleColumns + `
		FROM article a
		LEFT JOIN badge b ON a.id_badge = b.id_badge
		WHERE b.id_badge IS NULL
		ORDER BY a.id_article`

	queryRecordView = `INSERT INTO article_views (id_article, views, last_viewed)
		VALUES ($1, 1, now())
		ON CONFLICT (id_article) DO UPDATE SET views = article_views.views + 1, last_viewed = now()`

	queryTopArticleIDs = `SELECT a.id_article
		FROM article a
		INNER JOIN badge b ON a.id_badge = b.id_badge
		LEFT JOIN article_views v ON v.id_article = a.id_article
		ORDER BY COALESCE(v.views, 0) DESC, a.date DESC, a.id_article DESC
		LIMIT $1`

	queryGetViews = `SELECT COALESCE((SELECT views FROM article_views WHERE id_article = $1), 0)`
)

func scanArticle(row pgx.Row) (*models.Article, error) {
	var (
		a           models.Article
		intro, body pgtype.Text
		readingTime pgtype.Int4
		badgeID     pgtype.Int8
		badgeName   pgtype.Text
	)
	if err := row.Scan(&a.ID, &a.Title, &intro, &body, &a.DateString, &readingTime, &a.Photo, &a.BadgeID, &badgeID, &badgeName); err != nil {
		return nil, err
	}
	a.Intro = intro.String
	a.Body = body.String
	a.ReadingTime = int(readingTime.Int32)
	if badgeID.Valid {
		a.Badge = &models.Badge{ID: badgeID.Int64, Name: badgeName.String}
	}
	a.Normalize()
	return &a, nil
}

func (s *Store) queryArticles(ctx context.Context, query string, args ...any) ([]*models.Article, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("database connection not available")
	}
	rows, err := s.pool.Query(ctx, query, args...)
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

// GetArticleWithBadge returns all rows joined with their badge for id.
// An empty result with nil error means not found.
func (s *Store) GetArticleWithBadge(ctx context.Context, id int64) ([]*models.Article, error) {
	articles, err := s.queryArticles(ctx, queryGetArticleWithBadge, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get article %d: %w", id, err)
	}
	return articles, nil
}

// GetArticlesByIDs returns joined articles in the order of ids
func (s *Store) GetArticlesByIDs(ctx context.Context, ids []int64) ([]*models.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	articles, err := s.queryArticles(ctx, queryGetArticlesByIDs, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles by ids: %w", err)
	}
	return models.OrderByIDs(articles, ids), nil
}

// ListArticles returns every article, badge or not, newest first
func (s *Store) ListArticles(ctx context.Context) ([]*models.Article, error) {
	articles, err := s.queryArticles(ctx, queryListArticles)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	return articles, nil
}

// FindDanglingArticles returns articles whose badge does not exist
func (s *Store) FindDanglingArticles(ctx context.Context) ([]*models.Article, error) {
	articles, err := s.queryArticles(ctx, queryFindDanglingArticles)
	if err != nil {
		return nil, fmt.Errorf("failed to find dangling articles: %w", err)
	}
	return articles, nil
}

// RecordView increments the view counter of an article
func (s *Store) RecordView(ctx context.Context, articleID int64) error {
	if _, err := s.pool.Exec(ctx, queryRecordView, articleID); err != nil {
		return fmt.Errorf("failed to record view for article %d: %w", articleID, err)
	}
	return nil
}

// TopArticleIDs returns up to limit visible article ids, most viewed first
func (s *Store) TopArticleIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, queryTopArticleIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top articles: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to collect top article ids: %w", err)
	}
	return ids, nil
}

// GetViews returns the recorded views of an article, 0 if never viewed
func (s *Store) GetViews(ctx context.Context, articleID int64) (int64, error) {
	var views int64
	if err := s.pool.QueryRow(ctx, queryGetViews, articleID).Scan(&views); err != nil {
		return 0, fmt.Errorf("failed to get views for article %d: %w", articleID, err)
	}
	return views, nil
}
