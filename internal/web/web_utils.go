package web

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/blake2b"

	"github.com/ppotrimba/blog/internal/config"
	"github.com/ppotrimba/blog/internal/metrics"
	"github.com/ppotrimba/blog/internal/models"
	"github.com/ppotrimba/blog/internal/popular"
)

// page templates, each parsed together with base.html
var pageTemplates = []string{"article.html", "about.html", "hire.html", "error.html"}

var templateFuncs = template.FuncMap{
	"photoURL": photoURL,
	"articleURL": func(id int64) string {
		return fmt.Sprintf("/article?id=%d", id)
	},
}

// loadTemplates parses every page once from the embedded FS
func loadTemplates() (map[string]*template.Template, error) {
	templates := make(map[string]*template.Template, len(pageTemplates))
	for _, page := range pageTemplates {
		tmpl, err := template.New("base.html").Funcs(templateFuncs).
			ParseFS(EmbeddedTemplatesFS, "templates/base.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("web: failed to parse template %s: %w", page, err)
		}
		templates[page] = tmpl
	}
	return templates, nil
}

// photoURL maps a stored photo path to a URL. Relative paths are served from
// the media directory, absolute http(s) URLs pass through.
func photoURL(p string) string {
	if p == "" {
		return ""
	}
	if u, err := url.Parse(p); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return p
	}
	return "/media/" + strings.TrimLeft(p, "/")
}

// getBaseTemplateData creates a TemplateData struct with the common fields and
// the most popular sidebar
func (s *WebServer) getBaseTemplateData(c *gin.Context, title string, activePage string) TemplateData {
	return TemplateData{
		Title:       title,
		SiteTitle:   s.Render.SiteTitle,
		Author:      s.Render.Author,
		AppVersion:  config.AppVersion,
		CurrentYear: time.Now().Year(),
		ActivePage:  activePage,
		RequestID:   c.GetString("request_id"),
		Popular:     s.popularArticles(c),
	}
}

// popularArticles never fails the page, errors leave the sidebar empty
func (s *WebServer) popularArticles(c *gin.Context) []*models.Article {
	articles, err := popular.Sidebar(c.Request.Context(), s.Tracker, s.Store, s.Render.PopularLimit)
	if err != nil {
		metrics.PopularErrors.Inc()
		log.Printf("[POPULAR]: sidebar unavailable: %v", err)
		return nil
	}
	return articles
}

// toArticleBlocks builds the view of each joined row
func (s *WebServer) toArticleBlocks(articles []*models.Article) []ArticleBlock {
	blocks := make([]ArticleBlock, 0, len(articles))
	for _, a := range articles {
		b := ArticleBlock{
			ID:          a.ID,
			Title:       a.Title,
			Intro:       a.Intro,
			Body:        a.Body,
			Date:        a.DisplayDate(),
			ReadingTime: a.ReadingTimeLabel(),
			Photo:       a.Photo,
			Badge:       a.BadgeName(),
		}
		if s.Sanitized != nil {
			b.SafeBody = s.Sanitized.Body(a.Body)
		}
		blocks = append(blocks, b)
	}
	if s.Sanitized != nil {
		stats := s.Sanitized.Stats()
		metrics.SanitizedCacheEntries.Set(float64(stats["entries"].(int)))
		metrics.SanitizedCacheBytes.Set(float64(stats["size"].(int64)))
	}
	return blocks
}

// renderTemplate executes a page into a buffer so template errors become a
// clean 500. Successful pages get an ETag and honor If-None-Match.
// It returns the status actually written.
func (s *WebServer) renderTemplate(c *gin.Context, statusCode int, templateName string, data interface{}) int {
	tmpl, ok := s.templates[templateName]
	if !ok {
		s.renderError(c, http.StatusInternalServerError, "Template error", "unknown template "+templateName)
		return http.StatusInternalServerError
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.renderError(c, http.StatusInternalServerError, "Template error", err.Error())
		return http.StatusInternalServerError
	}

	if statusCode == http.StatusOK {
		etag := pageETag(buf.Bytes())
		c.Header("ETag", etag)
		c.Header("Cache-Control", "no-cache")
		if etagMatches(c.GetHeader("If-None-Match"), etag) {
			c.Status(http.StatusNotModified)
			return http.StatusNotModified
		}
	}
	c.Data(statusCode, "text/html; charset=utf-8", buf.Bytes())
	return statusCode
}

// renderError renders an error page
func (s *WebServer) renderError(c *gin.Context, statusCode int, message string, errstring string) {
	log.Printf("[WEB]: Error %d: %s - %s (request %s)", statusCode, message, errstring, c.GetString("request_id"))

	data := ErrorPageData{
		TemplateData: TemplateData{
			Title:       message,
			SiteTitle:   s.Render.SiteTitle,
			Author:      s.Render.Author,
			AppVersion:  config.AppVersion,
			CurrentYear: time.Now().Year(),
			RequestID:   c.GetString("request_id"),
		},
		Error:      message,
		StatusCode: statusCode,
	}
	var buf bytes.Buffer
	tmpl := s.templates["error.html"]
	if tmpl == nil || tmpl.ExecuteTemplate(&buf, "base.html", data) != nil {
		c.String(statusCode, "Error %d: %s", statusCode, message)
		return
	}
	c.Data(statusCode, "text/html; charset=utf-8", buf.Bytes())
}

// pageETag is a strong validator over the rendered bytes
func pageETag(body []byte) string {
	sum := blake2b.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
