package web

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ppotrimba/blog/internal/config"
	"github.com/ppotrimba/blog/internal/metrics"
	"github.com/ppotrimba/blog/internal/models"
	"github.com/ppotrimba/blog/internal/popular"
)

// ArticleJSON is the API view of one joined row. Text fields are raw;
// JSON consumers do their own escaping.
type ArticleJSON struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Intro       string `json:"intro"`
	Body        string `json:"body"`
	Date        string `json:"date"`
	ReadingTime int    `json:"reading_time"`
	Photo       string `json:"photo"`
	BadgeID     int64  `json:"badge_id"`
	Badge       string `json:"badge"`
}

func toArticleJSON(a *models.Article) ArticleJSON {
	return ArticleJSON{
		ID:          a.ID,
		Title:       a.Title,
		Intro:       a.Intro,
		Body:        a.Body,
		Date:        a.DateString,
		ReadingTime: a.ReadingMinutes(),
		Photo:       a.Photo,
		BadgeID:     a.BadgeID,
		Badge:       a.BadgeName(),
	}
}

// getArticle serves /api/v1/articles/:id with every matching row
func (s *WebServer) getArticle(c *gin.Context) {
	_, articles, status, err := s.lookupArticle(c.Request.Context(), c.Param("id"))
	switch status {
	case http.StatusBadRequest:
		c.JSON(status, gin.H{"error": "invalid article id"})
		return
	case http.StatusInternalServerError:
		s.logAPIError(c, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	case http.StatusNotFound:
		c.JSON(status, gin.H{"error": "article not found"})
		return
	}

	metrics.ArticleRequests.WithLabelValues(metrics.ResultFound).Inc()
	out := make([]ArticleJSON, 0, len(articles))
	for _, a := range articles {
		out = append(out, toArticleJSON(a))
	}
	c.JSON(http.StatusOK, gin.H{"articles": out})
}

// getPopular serves /api/v1/popular?limit=N
func (s *WebServer) getPopular(c *gin.Context) {
	limit := s.Render.PopularLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > config.MaxPopularLimit {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	articles, err := popular.Sidebar(c.Request.Context(), s.Tracker, s.Store, limit)
	if err != nil {
		s.logAPIError(c, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	out := make([]ArticleJSON, 0, len(articles))
	for _, a := range articles {
		out = append(out, toArticleJSON(a))
	}
	c.JSON(http.StatusOK, gin.H{"articles": out})
}

func (s *WebServer) logAPIError(c *gin.Context, err error) {
	log.Printf("[WEB]: API %s failed: %v (request %s)", c.Request.URL.Path, err, c.GetString("request_id"))
}
