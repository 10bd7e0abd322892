package web

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppotrimba/blog/internal/metrics"
	"github.com/ppotrimba/blog/internal/models"
)

// articleIDParam reads the id from /articles/:id or from ?id= on /article and
// the legacy /image-post.php
func articleIDParam(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	return c.Query("id")
}

// lookupArticle validates rawID and fetches the joined rows. The returned
// status is 200, 400, 404 or 500; on 200 the view is recorded and the caller
// counts the result once it knows what it wrote.
func (s *WebServer) lookupArticle(ctx context.Context, rawID string) (int64, []*models.Article, int, error) {
	id, err := models.ParseArticleID(rawID)
	if err != nil {
		metrics.ArticleRequests.WithLabelValues(metrics.ResultBadID).Inc()
		return 0, nil, http.StatusBadRequest, err
	}

	articles, err := s.Store.GetArticleWithBadge(ctx, id)
	if err != nil {
		metrics.ArticleRequests.WithLabelValues(metrics.ResultError).Inc()
		return id, nil, http.StatusInternalServerError, err
	}
	if len(articles) == 0 {
		metrics.ArticleRequests.WithLabelValues(metrics.ResultNotFound).Inc()
		return id, nil, http.StatusNotFound, nil
	}

	if s.Tracker != nil {
		if err := s.Tracker.RecordView(ctx, id); err != nil {
			metrics.ViewRecordErrors.Inc()
			log.Printf("[POPULAR]: failed to record view of article %d: %v", id, err)
		}
	}
	return id, articles, http.StatusOK, nil
}

func (s *WebServer) articlePage(c *gin.Context) {
	id, articles, status, err := s.lookupArticle(c.Request.Context(), articleIDParam(c))
	switch status {
	case http.StatusBadRequest:
		s.renderError(c, status, "Invalid article id", err.Error())
		return
	case http.StatusInternalServerError:
		s.renderError(c, status, "Could not load the article", err.Error())
		return
	}

	title := "Article not found"
	if len(articles) > 0 {
		title = articles[0].Title
	}
	data := ArticlePageData{
		TemplateData: s.getBaseTemplateData(c, title, "article"),
		ArticleID:    id,
		Articles:     s.toArticleBlocks(articles),
		NotFound:     status == http.StatusNotFound,
		TrustedBody:  s.Sanitized != nil,
	}
	switch s.renderTemplate(c, status, "article.html", data) {
	case http.StatusNotModified:
		metrics.ArticleRequests.WithLabelValues(metrics.ResultNotChange).Inc()
	case http.StatusOK:
		metrics.ArticleRequests.WithLabelValues(metrics.ResultFound).Inc()
	}
}
