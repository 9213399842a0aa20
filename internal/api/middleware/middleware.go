package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/gin-gonic/gin"
)

const healthPath = "/health"

// CORS echoes allowed origins. Credentials are only offered to an echoed
// origin, never to "*". Preflights from other origins are refused.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	methods := "GET, POST, PATCH, DELETE, OPTIONS"
	if len(cfg.AllowedMethods) > 0 {
		methods = strings.Join(cfg.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		allowed := isOriginAllowed(origin, cfg.AllowedOrigins)

		header := c.Writer.Header()
		header.Add("Vary", "Origin")
		switch {
		case allowed && origin != "":
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
		case allowed && containsWildcard(cfg.AllowedOrigins):
			header.Set("Access-Control-Allow-Origin", "*")
		}

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}

		if !allowed {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		header.Set("Access-Control-Allow-Methods", methods)
		header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept, Origin, Cache-Control")
		header.Set("Access-Control-Max-Age", "600")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// Logger writes one structured line per request. Requests against a server
// go through that server's logger so they sit beside its lifecycle lines.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		c.Writer.Header().Set("X-Response-Time", latency.String())

		if c.Request.URL.Path == healthPath && gin.Mode() != gin.DebugMode {
			return
		}

		logger := logging.L()
		if id := c.Param("id"); id != "" {
			logger = logging.ForServer(id)
		}

		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", latency.String(),
			"ip", c.ClientIP(),
		}
		if query := redactQuery(c.Request.URL.Query()); query != "" {
			attrs = append(attrs, "query", query)
		}
		if operator := c.GetString(OperatorKey); operator != "" {
			attrs = append(attrs, "operator", operator)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		logger.Log(c.Request.Context(), requestLevel(c.Writer.Status()), "http_request", attrs...)
	}
}

// redactQuery encodes the query with access tokens masked. The console
// socket accepts its token as a query parameter.
func redactQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	if _, ok := values["token"]; ok {
		values.Set("token", "****")
	}
	return values.Encode()
}

func requestLevel(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RateLimit is a fixed-window limiter keyed by client IP. Retry-After
// carries the seconds left in the caller's window.
func RateLimit(enabled bool, requestsPerMinute int) gin.HandlerFunc {
	limiter := newRateLimiter(enabled, requestsPerMinute)

	return func(c *gin.Context) {
		if !limiter.enabled || c.Request.URL.Path == healthPath {
			c.Next()
			return
		}

		ok, retry := limiter.allow(c.ClientIP())
		if !ok {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}

// IsOriginAllowed reports whether origin matches the allowlist. An empty
// origin (non-browser client) is always allowed.
func IsOriginAllowed(origin string, allowedOrigins []string) bool {
	return isOriginAllowed(origin, allowedOrigins)
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return true
	}

	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "" {
			continue
		}
		if normalized == "*" || normalized == "0.0.0.0/0" || normalized == origin {
			return true
		}
	}

	return false
}

func containsWildcard(allowedOrigins []string) bool {
	for _, allowedOrigin := range allowedOrigins {
		normalized := strings.TrimSpace(allowedOrigin)
		if normalized == "*" || normalized == "0.0.0.0/0" {
			return true
		}
	}
	return false
}

type rateLimiter struct {
	enabled           bool
	requestsPerMinute int
	window            time.Duration
	mu                sync.Mutex
	entries           map[string]*rateLimitEntry
	lastCleanup       time.Time
}

type rateLimitEntry struct {
	windowStart time.Time
	count       int
}

func newRateLimiter(enabled bool, requestsPerMinute int) *rateLimiter {
	return &rateLimiter{
		enabled:           enabled && requestsPerMinute > 0,
		requestsPerMinute: requestsPerMinute,
		window:            time.Minute,
		entries:           make(map[string]*rateLimitEntry),
		lastCleanup:       time.Now(),
	}
}

// allow counts one request for key. When the window is spent it reports
// how long until the window resets.
func (rl *rateLimiter) allow(key string) (bool, time.Duration) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastCleanup) > time.Minute {
		rl.cleanup(now)
	}

	entry, exists := rl.entries[key]
	if !exists || now.Sub(entry.windowStart) >= rl.window {
		rl.entries[key] = &rateLimitEntry{windowStart: now, count: 1}
		return true, 0
	}

	if entry.count >= rl.requestsPerMinute {
		return false, rl.window - now.Sub(entry.windowStart)
	}

	entry.count++
	return true, 0
}

func (rl *rateLimiter) cleanup(now time.Time) {
	for key, entry := range rl.entries {
		if now.Sub(entry.windowStart) >= rl.window {
			delete(rl.entries, key)
		}
	}
	rl.lastCleanup = now
}
