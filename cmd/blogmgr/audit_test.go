package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppotrimba/blog/internal/cache"
	"github.com/ppotrimba/blog/internal/config"
	"github.com/ppotrimba/blog/internal/database"
	"github.com/ppotrimba/blog/internal/models"
)

type fakeSource struct {
	articles []*models.Article
	dangling []*models.Article
	err      error
}

func (f *fakeSource) ListArticles(ctx context.Context) ([]*models.Article, error) {
	return f.articles, f.err
}

func (f *fakeSource) FindDanglingArticles(ctx context.Context) ([]*models.Article, error) {
	return f.dangling, f.err
}

func (f *fakeSource) GetViews(ctx context.Context, articleID int64) (int64, error) {
	return 0, f.err
}

func article(id int64, body string, readingTime int, date string) *models.Article {
	a := &models.Article{
		ID:          id,
		Title:       "t",
		Body:        body,
		DateString:  date,
		ReadingTime: readingTime,
		BadgeID:     3,
		Badge:       &models.Badge{ID: 3, Name: "Computer Vision"},
	}
	a.Normalize()
	return a
}

func TestAuditArticlesClean(t *testing.T) {
	findings := auditArticles([]*models.Article{
		article(1, "<p>short body</p>", 1, "2020-03-14"),
		article(2, "", 0, ""),
	}, cache.NewSanitizer())
	assert.Empty(t, findings)
}

func TestAuditArticlesFindings(t *testing.T) {
	findings := auditArticles([]*models.Article{
		article(5, `<p>hi</p><script>alert(1)</script>`, 1, "2020-03-14"),
		article(6, "<p>ten words is far from twelve minutes of reading time</p>", 12, "2020-03-14"),
		article(7, "<p>ok</p>", 1, "someday"),
	}, cache.NewSanitizer())

	require.Len(t, findings, 3)
	assert.Equal(t, finding{5, findingUnsafeBody, "body HTML is changed by the sanitizer"}, findings[0])
	assert.Equal(t, int64(6), findings[1].ArticleID)
	assert.Equal(t, findingReadingTime, findings[1].Kind)
	assert.Equal(t, "stored 12 min, estimated 1 min", findings[1].Detail)
	assert.Equal(t, finding{7, findingBadDate, `unparsable date "someday"`}, findings[2])
}

func TestRunAuditSortsAndIncludesDangling(t *testing.T) {
	orphan := article(14, "<p>b</p>", 1, "2022-05-05")
	orphan.BadgeID = 99
	orphan.Badge = nil
	src := &fakeSource{
		articles: []*models.Article{
			article(20, "<img src=x onerror=alert(1)>", 0, "2020-01-01"),
			orphan,
		},
		dangling: []*models.Article{orphan},
	}

	findings, err := runAudit(context.Background(), src, cache.NewSanitizer())
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, int64(14), findings[0].ArticleID)
	assert.Equal(t, findingDanglingBadge, findings[0].Kind)
	assert.Equal(t, "badge 99 does not exist", findings[0].Detail)
	assert.Equal(t, int64(20), findings[1].ArticleID)
	assert.Equal(t, findingUnsafeBody, findings[1].Kind)
}

func TestRunAuditError(t *testing.T) {
	_, err := runAudit(context.Background(), &fakeSource{err: errors.New("db down")}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestExportArticles(t *testing.T) {
	src := &fakeSource{articles: []*models.Article{
		article(12, "<p>body of x</p>", 6, "2020-03-14"),
	}}
	path := filepath.Join(t.TempDir(), "articles.json")

	n, err := exportArticles(context.Background(), src, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got []ExportedArticle
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 1)
	assert.Equal(t, int64(12), got[0].ID)
	assert.Equal(t, "Computer Vision", got[0].Badge)
	assert.Equal(t, "2020-03-14", got[0].Date)
	assert.Equal(t, 6, got[0].ReadingTime)
}

func TestPaint(t *testing.T) {
	assert.Equal(t, "x", paint(false, ansiRed, "x"))
	assert.Equal(t, ansiRed+"x"+ansiReset, paint(true, ansiRed, "x"))
}

func TestFormatTableColorKeepsAlignment(t *testing.T) {
	rows := [][]string{
		{"ID", "DATE", "BADGE", "TITLE"},
		{"12", "2020-03-14", "Computer Vision", "X"},
		{"14", "2022-05-05", "missing(99)", "Orphan"},
	}
	paints := map[int]string{0: ansiBold, 2: ansiRed}

	plain := formatTable(rows, paints, false)
	colored := formatTable(rows, paints, true)
	assert.NotContains(t, plain, "\033[")

	stripped := strings.NewReplacer(ansiBold, "", ansiRed, "", ansiReset, "").Replace(colored)
	assert.Equal(t, plain, stripped)

	lines := strings.Split(plain, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Index(lines[0], "TITLE"), strings.Index(lines[1], "X"))
	assert.Equal(t, strings.Index(lines[0], "TITLE"), strings.Index(lines[2], "Orphan"))

	coloredLines := strings.Split(colored, "\n")
	assert.True(t, strings.HasPrefix(coloredLines[0], ansiBold))
	assert.False(t, strings.HasPrefix(coloredLines[1], "\033["))
	assert.True(t, strings.HasPrefix(coloredLines[2], ansiRed))
}

func TestOpenSourceDoesNotCreateDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.sq3")
	cfg := config.NewDefaultConfig()
	cfg.Database.Driver = config.DriverSQLite
	cfg.Database.SQLitePath = path

	_, _, err := openSource(context.Background(), cfg)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestOpenSourceReadsExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blog.sq3")
	dbconfig := database.DefaultDBConfig()
	dbconfig.Path = path
	db, err := database.OpenDatabase(dbconfig)
	require.NoError(t, err)
	_, err = db.GetMainDB().Exec(`INSERT INTO Badge (IdBadge, Name) VALUES (3, 'Computer Vision')`)
	require.NoError(t, err)
	_, err = db.GetMainDB().Exec(`INSERT INTO Article (IdArticle, Title, Date, PhotoArticle, IdBadge) VALUES (12, 'X', '2020-03-14', 'x.jpg', 3)`)
	require.NoError(t, err)
	require.NoError(t, db.Shutdown())

	cfg := config.NewDefaultConfig()
	cfg.Database.SQLitePath = path
	src, closeFn, err := openSource(context.Background(), cfg)
	require.NoError(t, err)
	defer closeFn()

	articles, err := src.ListArticles(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 1)
	assert.Equal(t, "Computer Vision", articles[0].BadgeName())
}
