package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppotrimba/blog/internal/config"
	"github.com/ppotrimba/blog/internal/metrics"
	"github.com/ppotrimba/blog/internal/models"
)

// fakeStore serves fixed rows and counts views; it doubles as the tracker
type fakeStore struct {
	mu       sync.Mutex
	articles map[int64][]*models.Article
	views    map[int64]int
	calls    int
	err      error
	topErr   error
}

func newFakeStore() *fakeStore {
	fs := &fakeStore{
		articles: map[int64][]*models.Article{},
		views:    map[int64]int{},
	}
	fs.add(&models.Article{
		ID: 12, Title: "X", Intro: "intro of x", Body: "<p>body</p>",
		DateString: "2020-03-14", ReadingTime: 6, Photo: "article/img/x.jpg",
		BadgeID: 3, Badge: &models.Badge{ID: 3, Name: "Computer Vision"},
	})
	fs.add(&models.Article{
		ID: 13, Title: "Y", Intro: "intro of y", Body: "<p>y</p>",
		DateString: "2021-01-02", Photo: "https://cdn.example.com/y.jpg",
		BadgeID: 4, Badge: &models.Badge{ID: 4, Name: "Deep Learning"},
	})
	return fs
}

func (f *fakeStore) add(a *models.Article) {
	a.Normalize()
	f.articles[a.ID] = append(f.articles[a.ID], a)
}

func (f *fakeStore) GetArticleWithBadge(ctx context.Context, id int64) ([]*models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.articles[id], nil
}

func (f *fakeStore) GetArticlesByIDs(ctx context.Context, ids []int64) ([]*models.Article, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Article
	for _, id := range ids {
		if rows := f.articles[id]; len(rows) > 0 {
			out = append(out, rows[0])
		}
	}
	return out, nil
}

func (f *fakeStore) TopArticleIDs(ctx context.Context, limit int) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.topErr != nil {
		return nil, f.topErr
	}
	var ids []int64
	for id := range f.articles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if f.views[ids[i]] != f.views[ids[j]] {
			return f.views[ids[i]] > f.views[ids[j]]
		}
		return ids[i] > ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeStore) RecordView(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[id]++
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return f.err }

func (f *fakeStore) storeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestServer(t *testing.T, store *fakeStore, mutate func(*config.MainConfig)) *WebServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.NewDefaultConfig()
	cfg.Web.RateLimitRPS = 0
	cfg.Web.MediaDir = ""
	if mutate != nil {
		mutate(cfg)
	}
	s, err := NewServer(store, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func get(s *WebServer, target string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func countBlocks(body string) int {
	return strings.Count(body, `class="article-block"`)
}

func TestArticlePageFound(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, nil)

	rec := get(s, "/article?id=12")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Equal(t, 1, countBlocks(body))
	assert.Contains(t, body, "<h2>X</h2>")
	assert.Contains(t, body, "intro of x")
	assert.Contains(t, body, "March 14, 2020")
	assert.Contains(t, body, "6 min")
	assert.Contains(t, body, "Computer Vision")
	assert.Contains(t, body, `src="/media/article/img/x.jpg"`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, 1, store.views[12])
}

func TestArticlePageMultipleRows(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Article{ID: 12, Title: "X again", BadgeID: 3, Badge: &models.Badge{ID: 3, Name: "Computer Vision"}})
	s := newTestServer(t, store, nil)

	rec := get(s, "/article?id=12")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, countBlocks(rec.Body.String()))
	assert.Equal(t, 1, store.views[12], "one view per page hit")
}

func TestArticlePageNotFound(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, nil)

	rec := get(s, "/article?id=9999")
	require.Equal(t, http.StatusNotFound, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, 0, countBlocks(body))
	assert.Contains(t, body, "Article not found")
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.Zero(t, store.views[9999])
}

func TestArticlePageInvalidID(t *testing.T) {
	for _, raw := range []string{"abc", "-5", "0", "", "12abc", "1.5", "99999999999999999999", "12%20OR%201=1"} {
		t.Run(raw, func(t *testing.T) {
			store := newFakeStore()
			s := newTestServer(t, store, nil)

			rec := get(s, "/article?id="+raw)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, 0, countBlocks(rec.Body.String()))
			assert.Equal(t, 0, store.storeCalls(), "store must not be queried")
		})
	}
}

func TestArticlePageStoreError(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("database is locked")
	s := newTestServer(t, store, nil)

	rec := get(s, "/article?id=12")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "database is locked")
	assert.Contains(t, rec.Body.String(), "Could not load the article")
}

func TestArticlePageEscapesFields(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Article{
		ID: 20, Title: `<img src=x onerror=alert(1)>`, Intro: `<script>alert(1)</script>`,
		Body: `<p>ok</p><script>bad()</script>`, DateString: `<b>2020</b>`,
		BadgeID: 5, Badge: &models.Badge{ID: 5, Name: `<i>badge</i>`},
	})
	s := newTestServer(t, store, nil)

	rec := get(s, "/article?id=20")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.NotContains(t, body, "<script>bad()</script>")
	assert.Contains(t, body, "&lt;p&gt;ok&lt;/p&gt;")
	assert.NotContains(t, body, "<img src=x")
	assert.NotContains(t, body, "<b>2020</b>")
	assert.NotContains(t, body, "<i>badge</i>")
}

func TestArticlePageTrustedBody(t *testing.T) {
	store := newFakeStore()
	store.add(&models.Article{
		ID: 21, Title: "T", Intro: `<script>alert(1)</script>`,
		Body:    `<p>ok</p><script>bad()</script><a href="https://example.com/">link</a>`,
		BadgeID: 3, Badge: &models.Badge{ID: 3, Name: "CV"},
	})
	s := newTestServer(t, store, func(cfg *config.MainConfig) {
		cfg.Render.TrustedBodyHTML = true
	})

	rec := get(s, "/article?id=21")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, "<p>ok</p>")
	assert.NotContains(t, body, "bad()")
	assert.Contains(t, body, "nofollow")
	// intro is still escaped
	assert.Contains(t, body, "&lt;script&gt;alert(1)&lt;/script&gt;")

	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.SanitizedCacheEntries), float64(1))
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.SanitizedCacheBytes), float64(len("<p>ok</p>")))
}

func TestArticleRoutes(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, nil)

	for _, target := range []string{"/article?id=12", "/image-post.php?id=12", "/articles/12"} {
		rec := get(s, target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, 1, countBlocks(rec.Body.String()), target)
	}
	assert.Equal(t, http.StatusBadRequest, get(s, "/articles/abc").Code)
}

func TestArticlePageETag(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, nil)

	found := metrics.ArticleRequests.WithLabelValues(metrics.ResultFound)
	notModified := metrics.ArticleRequests.WithLabelValues(metrics.ResultNotChange)
	foundBefore, notModifiedBefore := testutil.ToFloat64(found), testutil.ToFloat64(notModified)

	first := get(s, "/article?id=12")
	require.Equal(t, http.StatusOK, first.Code)
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	second := get(s, "/article?id=12", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, second.Code)
	assert.Empty(t, second.Body.String())
	assert.Equal(t, foundBefore+1, testutil.ToFloat64(found))
	assert.Equal(t, notModifiedBefore+1, testutil.ToFloat64(notModified))

	third := get(s, "/article?id=12", "If-None-Match", `"stale"`)
	assert.Equal(t, http.StatusOK, third.Code)
}

func TestSidebar(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, nil)

	get(s, "/article?id=13")
	rec := get(s, "/about")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Equal(t, 2, strings.Count(body, `class="popular-item"`))
	assert.Less(t, strings.Index(body, `href="/article?id=13"`), strings.Index(body, `href="/article?id=12"`))
	assert.Contains(t, body, `src="https://cdn.example.com/y.jpg"`)
}

func TestSidebarFailureDegrades(t *testing.T) {
	store := newFakeStore()
	store.topErr = errors.New("ranking broke")
	s := newTestServer(t, store, nil)

	rec := get(s, "/article?id=12")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, countBlocks(rec.Body.String()))
	assert.Contains(t, rec.Body.String(), "Nothing here yet.")
}

func TestStaticPages(t *testing.T) {
	s := newTestServer(t, newFakeStore(), nil)

	rec := get(s, "/")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/about", rec.Header().Get("Location"))

	for _, target := range []string{"/about", "/aboutme.php"} {
		rec := get(s, target)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "About Me")
		assert.Contains(t, rec.Body.String(), "LeadTheFuture")
	}
	for _, target := range []string{"/hire", "/hireme.php"} {
		rec := get(s, target)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Resume.pdf")
	}

	rec = get(s, "/no/such/page")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssetsAndHealthChecks(t *testing.T) {
	s := newTestServer(t, newFakeStore(), nil)

	rec := get(s, "/static/css/blog.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".article-block")

	rec = get(s, "/robots.txt")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "User-agent")

	rec = get(s, "/favicon.ico")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "svg")

	assert.Equal(t, "pong", get(s, "/ping").Body.String())
	assert.Equal(t, http.StatusOK, get(s, "/healthz").Code)
	assert.Equal(t, http.StatusNotFound, get(s, "/static/").Code)

	rec = get(s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "blog_")
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	s := newTestServer(t, newFakeStore(), nil)

	rec := get(s, "/about")
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'self'")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = get(s, "/about", "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestHireResumeCanBeEmbedded(t *testing.T) {
	media := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(media, "resume"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(media, "resume", "Resume.pdf"), []byte("%PDF-1.4\n%%EOF\n"), 0644))
	s := newTestServer(t, newFakeStore(), func(cfg *config.MainConfig) {
		cfg.Web.MediaDir = media
	})

	page := get(s, "/hire")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `src="/media/resume/Resume.pdf"`)

	rec := get(s, "/media/resume/Resume.pdf")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.NotContains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, newFakeStore(), func(cfg *config.MainConfig) {
		cfg.Web.RateLimitRPS = 0.001
		cfg.Web.RateLimitBurst = 2
	})

	assert.Equal(t, http.StatusOK, get(s, "/about").Code)
	assert.Equal(t, http.StatusOK, get(s, "/about").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(s, "/about").Code)
	// assets are exempt
	assert.Equal(t, http.StatusOK, get(s, "/static/css/blog.css").Code)
}

func TestAPIArticle(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, nil)

	rec := get(s, "/api/v1/articles/12")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Articles []ArticleJSON `json:"articles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Articles, 1)
	assert.Equal(t, "X", resp.Articles[0].Title)
	assert.Equal(t, "<p>body</p>", resp.Articles[0].Body)
	assert.Equal(t, "Computer Vision", resp.Articles[0].Badge)
	assert.Equal(t, 6, resp.Articles[0].ReadingTime)

	rec = get(s, "/api/v1/articles/9999")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"article not found"}`, rec.Body.String())

	calls := store.storeCalls()
	rec = get(s, "/api/v1/articles/-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, calls, store.storeCalls())

	store.err = errors.New("boom")
	rec = get(s, "/api/v1/articles/12")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestAPIPopular(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, nil)
	get(s, "/article?id=12")

	rec := get(s, "/api/v1/popular?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Articles []ArticleJSON `json:"articles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Articles, 1)
	assert.Equal(t, int64(12), resp.Articles[0].ID)

	assert.Equal(t, http.StatusBadRequest, get(s, "/api/v1/popular?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(s, "/api/v1/popular?limit=x").Code)
}

func TestPhotoURL(t *testing.T) {
	assert.Equal(t, "/media/article/img/a.jpg", photoURL("article/img/a.jpg"))
	assert.Equal(t, "/media/a.jpg", photoURL("/a.jpg"))
	assert.Equal(t, "https://cdn/x.jpg", photoURL("https://cdn/x.jpg"))
	assert.Equal(t, "", photoURL(""))
}

func TestETagMatches(t *testing.T) {
	etag := pageETag([]byte("page"))
	assert.True(t, etagMatches(etag, etag))
	assert.True(t, etagMatches(`"other", `+etag, etag))
	assert.True(t, etagMatches("W/"+etag, etag))
	assert.True(t, etagMatches("*", etag))
	assert.False(t, etagMatches("", etag))
	assert.False(t, etagMatches(`"other"`, etag))
}
