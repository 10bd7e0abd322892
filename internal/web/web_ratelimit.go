package web

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ppotrimba/blog/internal/metrics"
)

const (
	limiterCleanupTick = time.Minute
	limiterIdleTimeout = 5 * time.Minute
)

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter hands out one token bucket per client IP
type ipRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*rateClient
	rps      rate.Limit
	burst    int
	stop     chan struct{}
	stopOnce sync.Once
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	l := &ipRateLimiter{
		clients: make(map[string]*rateClient),
		rps:     rate.Limit(rps),
		burst:   burst,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	client, exists := l.clients[ip]
	if !exists {
		client = &rateClient{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[ip] = client
	}
	client.lastSeen = time.Now()
	l.mu.Unlock()
	return client.limiter.Allow()
}

// Middleware rejects requests over the limit with 429. Static assets are exempt.
func (l *ipRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isAssetPath(c.Request.URL.Path) {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if !l.allow(ip) {
			metrics.RateLimited.Inc()
			log.Printf("[WEB]: Rate limit exceeded for IP: %s", ip)
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func (l *ipRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *ipRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(limiterCleanupTick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(limiterIdleTimeout)
		case <-l.stop:
			return
		}
	}
}

// cleanup drops clients idle longer than idle
func (l *ipRateLimiter) cleanup(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for ip, client := range l.clients {
		if time.Since(client.lastSeen) > idle {
			delete(l.clients, ip)
			removed++
		}
	}
	return removed
}

func isAssetPath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/static/"), strings.HasPrefix(path, "/media/"):
		return true
	case path == "/favicon.ico", path == "/robots.txt", path == "/metrics", path == "/ping":
		return true
	}
	return false
}
