// Package web provides the HTTP server and page rendering for the blog
package web

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppotrimba/blog/internal/cache"
	"github.com/ppotrimba/blog/internal/config"
	"github.com/ppotrimba/blog/internal/metrics"
	"github.com/ppotrimba/blog/internal/models"
	"github.com/ppotrimba/blog/internal/popular"
)

// ArticleStore is what the server needs from a backend.
// *database.Database and *pgdb.Store implement it.
type ArticleStore interface {
	GetArticleWithBadge(ctx context.Context, id int64) ([]*models.Article, error)
	GetArticlesByIDs(ctx context.Context, ids []int64) ([]*models.Article, error)
	TopArticleIDs(ctx context.Context, limit int) ([]int64, error)
	Ping(ctx context.Context) error
}

// WebServer represents the web server
type WebServer struct {
	Store     ArticleStore
	Tracker   popular.Tracker
	Router    *gin.Engine
	Config    *config.WebConfig
	Render    *config.RenderConfig
	Sanitized *cache.SanitizedCache // nil unless trusted body HTML is enabled
	StartTime time.Time

	templates  map[string]*template.Template // page name -> base.html + page
	limiter    *ipRateLimiter
	httpServer *http.Server
}

// TemplateData represents common template data
type TemplateData struct {
	Title       string
	SiteTitle   string
	Author      string
	AppVersion  string
	CurrentYear int
	ActivePage  string
	RequestID   string
	Popular     []*models.Article
}

// ArticleBlock is one rendered article row
type ArticleBlock struct {
	ID          int64
	Title       string
	Intro       string
	Body        string
	SafeBody    template.HTML // sanitized body, only set in trusted mode
	Date        string
	ReadingTime string
	Photo       string
	Badge       string
}

// ArticlePageData represents data for article page
type ArticlePageData struct {
	TemplateData
	ArticleID   int64
	Articles    []ArticleBlock
	NotFound    bool
	TrustedBody bool
}

// ErrorPageData represents data for the error page
type ErrorPageData struct {
	TemplateData
	Error      string
	StatusCode int
}

// NewServer creates a new web server instance. tracker may be nil, then the
// store ranks the sidebar by its own view counts if it can.
func NewServer(store ArticleStore, tracker popular.Tracker, cfg *config.MainConfig) (*WebServer, error) {
	if store == nil {
		return nil, errors.New("web: nil article store")
	}
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if cfg.Web.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	templates, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(cfg.Web.TrustedProxies); err != nil {
		return nil, fmt.Errorf("web: invalid trusted proxies: %w", err)
	}

	// SAMEORIGIN, the hire page embeds the resume PDF from /media
	secureConfig := secure.Config{
		CustomFrameOptionsValue: "SAMEORIGIN",
		ContentTypeNosniff:      true,
		BrowserXssFilter:        true,
		ReferrerPolicy:          "strict-origin-when-cross-origin",
		ContentSecurityPolicy:   "default-src 'self'; img-src 'self' https: data:; style-src 'self' https://fonts.googleapis.com; font-src https://fonts.gstatic.com; frame-ancestors 'self'",
		IsDevelopment:           cfg.Web.Debug,
	}
	// SSL headers only when TLS terminates here, not behind nginx
	if cfg.Web.SSL {
		secureConfig.SSLRedirect = true
		secureConfig.STSSeconds = 31536000
		secureConfig.STSIncludeSubdomains = true
	}

	if tracker == nil {
		if t, ok := store.(popular.Tracker); ok {
			tracker = t
		}
	}

	s := &WebServer{
		Store:     store,
		Tracker:   tracker,
		Router:    router,
		Config:    &cfg.Web,
		Render:    &cfg.Render,
		templates: templates,
	}
	if cfg.Render.TrustedBodyHTML {
		s.Sanitized = cache.NewSanitizedCache(cache.NewSanitizer(), 1000, 30*time.Minute)
	}

	router.Use(s.ApacheLogFormat())
	router.Use(secure.New(secureConfig))
	router.Use(s.ReverseProxyMiddleware())
	router.Use(RequestIDMiddleware())
	if cfg.Web.RateLimitRPS > 0 {
		s.limiter = newIPRateLimiter(cfg.Web.RateLimitRPS, cfg.Web.RateLimitBurst)
		router.Use(s.limiter.Middleware())
	}
	router.Use(TimeoutMiddleware(cfg.Web.RequestTimeout))
	router.Use(MetricsMiddleware())

	s.setupRoutes()
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *WebServer) setupRoutes() {
	s.Router.GET("/static/*filepath", EmbeddedStaticHandler("/static"))
	if s.Config.MediaDir != "" {
		s.Router.Static("/media", s.Config.MediaDir)
	}
	s.Router.GET("/favicon.ico", EmbeddedFileHandler("static/img/favicon.svg"))
	s.Router.GET("/robots.txt", EmbeddedFileHandler("static/robots.txt"))
	s.Router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	s.Router.GET("/healthz", s.healthz)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.Router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/about")
	})

	s.Router.GET("/article", s.articlePage)
	s.Router.GET("/image-post.php", s.articlePage) // legacy URL
	s.Router.GET("/articles/:id", s.articlePage)

	s.Router.GET("/about", s.aboutPage)
	s.Router.GET("/aboutme.php", s.aboutPage)
	s.Router.GET("/hire", s.hirePage)
	s.Router.GET("/hireme.php", s.hirePage)

	api := s.Router.Group("/api/v1")
	{
		api.GET("/articles/:id", s.getArticle)
		api.GET("/popular", s.getPopular)
	}

	s.Router.NoRoute(func(c *gin.Context) {
		s.renderError(c, http.StatusNotFound, "Page Not Found", c.Request.URL.Path)
	})
}

// Start starts the web server with SSL support if configured.
// It returns http.ErrServerClosed after Shutdown.
func (s *WebServer) Start() error {
	addr := ":" + strconv.Itoa(s.Config.ListenPort)
	s.StartTime = time.Now()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	if s.Config.SSL {
		if s.Config.CertFile == "" || s.Config.KeyFile == "" {
			return errors.New("SSL enabled but cert_file or key_file not specified in config")
		}
		log.Printf("[WEB]: Starting HTTPS server on %s", addr)
		return s.httpServer.ListenAndServeTLS(s.Config.CertFile, s.Config.KeyFile)
	}
	log.Printf("[WEB]: Starting HTTP server on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *WebServer) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.Sanitized != nil {
		s.Sanitized.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *WebServer) healthz(c *gin.Context) {
	if err := s.Store.Ping(c.Request.Context()); err != nil {
		log.Printf("[WEB]: healthz: store ping failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "uptime": time.Since(s.StartTime).Round(time.Second).String()})
}

// ReverseProxyMiddleware handles X-Forwarded headers when running behind a reverse proxy.
// Client IPs are left to gin, which only honors them from trusted proxies.
func (s *WebServer) ReverseProxyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
			c.Request.URL.Scheme = "https"
		}
		if host := c.GetHeader("X-Forwarded-Host"); host != "" && c.RemoteIP() != c.ClientIP() {
			c.Request.Host = host
		}
		c.Next()
	}
}

func (s *WebServer) ApacheLogFormat() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf(`%s - - [%s] "%s %s %s" %d %d "%s" "%s"`+"\n",
			param.ClientIP,
			param.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.BodySize,
			param.Request.Referer(),
			param.Request.UserAgent(),
		)
	})
}

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware keeps a sane incoming X-Request-ID or assigns a new one
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 || strings.ContainsAny(id, "\r\n") {
			id = uuid.New().String()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// TimeoutMiddleware bounds the request context, store calls observe it
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// MetricsMiddleware records handler latency by route template
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
