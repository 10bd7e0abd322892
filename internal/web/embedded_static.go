package web

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
)

//go:embed static/*
var EmbeddedStaticFS embed.FS

//go:embed templates/*.html
var EmbeddedTemplatesFS embed.FS

// EmbeddedStaticHandler returns a Gin handler for serving embedded static files
func EmbeddedStaticHandler(prefix string) gin.HandlerFunc {
	staticFS, err := fs.Sub(EmbeddedStaticFS, "static")
	if err != nil {
		panic("Failed to create embedded static filesystem: " + err.Error())
	}
	fileServer := http.FileServer(http.FS(staticFS))

	return func(c *gin.Context) {
		p := strings.TrimPrefix(c.Request.URL.Path, prefix)
		if p == "" || p == "/" || strings.HasSuffix(p, "/") {
			// no directory listings
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Request.URL.Path = p
		c.Header("Cache-Control", "public, max-age=3600") // browser caches an hour
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
}

// EmbeddedFileHandler returns a Gin handler for serving a single embedded file
func EmbeddedFileHandler(filePath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		content, err := fs.ReadFile(EmbeddedStaticFS, filePath)
		if err != nil {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		c.Header("Cache-Control", "public, max-age=86400")
		c.Data(http.StatusOK, getContentType(filePath), content)
	}
}

// getContentType returns the MIME type for a file extension
func getContentType(filePath string) string {
	ext := path.Ext(filePath)
	if ext == ".txt" {
		return "text/plain; charset=utf-8"
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
