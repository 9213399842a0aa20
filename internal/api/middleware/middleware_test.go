package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/TheGojiOG/athena/internal/auth"
	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/gin-gonic/gin"
)

func TestIsOriginAllowed(t *testing.T) {
	allowed := []string{"0.0.0.0/0", "https://example.com"}

	if !isOriginAllowed("https://example.com", allowed) {
		t.Fatalf("expected origin to be allowed")
	}

	if !isOriginAllowed("https://anything.local", allowed) {
		t.Fatalf("expected wildcard allowlist to permit origin")
	}

	if !isOriginAllowed("", allowed) {
		t.Fatalf("expected empty origin to be allowed")
	}

	if IsOriginAllowed("https://evil.example", []string{"https://example.com"}) {
		t.Fatalf("expected unlisted origin to be rejected")
	}
}

func TestContainsWildcard(t *testing.T) {
	if !containsWildcard([]string{"0.0.0.0/0"}) {
		t.Fatalf("expected wildcard to be detected")
	}

	if containsWildcard([]string{"https://example.com"}) {
		t.Fatalf("did not expect wildcard to be detected")
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := newRateLimiter(true, 2)
	key := "127.0.0.1"

	if ok, _ := limiter.allow(key); !ok {
		t.Fatalf("expected first request to be allowed")
	}
	if ok, _ := limiter.allow(key); !ok {
		t.Fatalf("expected second request to be allowed")
	}
	ok, retry := limiter.allow(key)
	if ok {
		t.Fatalf("expected third request to be rate limited")
	}
	if retry <= 0 || retry > limiter.window {
		t.Fatalf("expected retry within the window, got %v", retry)
	}

	limiter.entries[key].windowStart = time.Now().Add(-limiter.window)
	if ok, _ := limiter.allow(key); !ok {
		t.Fatalf("expected request to be allowed after window reset")
	}
}

func TestRateLimitSetsRetryAfter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(true, 1))
	router.POST("/api/v1/servers/:id/start", func(c *gin.Context) { c.Status(http.StatusAccepted) })
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/servers/s1/start", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
			if err != nil || retry < 1 || retry > 60 {
				t.Fatalf("unexpected Retry-After %q", w.Header().Get("Retry-After"))
			}
		}
	}
	if codes[0] != http.StatusAccepted || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("expected accepted then limited, got %v", codes)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected health to bypass the limiter, got %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"https://ops.example"}}))
	router.PATCH("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://ops.example")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example" {
		t.Fatalf("unexpected allow-origin %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentials for an echoed origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PATCH, DELETE, OPTIONS" {
		t.Fatalf("unexpected allow-methods %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a preflight from an unlisted origin, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow-origin for an unlisted origin, got %q", got)
	}
}

func TestCORSWildcardOmitsCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"*"}}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Fatalf("expected no credentials with a wildcard origin, got %q", got)
	}
}

func TestRedactQueryMasksToken(t *testing.T) {
	got := redactQuery(url.Values{"token": {"secret.jwt"}, "filter": {"errors"}})
	if strings.Contains(got, "secret.jwt") {
		t.Fatalf("expected token to be masked, got %q", got)
	}
	if got != "filter=errors&token=%2A%2A%2A%2A" {
		t.Fatalf("unexpected query %q", got)
	}
	if redactQuery(nil) != "" {
		t.Fatalf("expected empty query for no values")
	}
}

func TestRequestLevel(t *testing.T) {
	cases := map[int]slog.Level{
		http.StatusOK:                  slog.LevelInfo,
		http.StatusAccepted:            slog.LevelInfo,
		http.StatusNotFound:            slog.LevelWarn,
		http.StatusTooManyRequests:     slog.LevelWarn,
		http.StatusInternalServerError: slog.LevelError,
	}
	for status, want := range cases {
		if got := requestLevel(status); got != want {
			t.Fatalf("status %d: expected %v, got %v", status, want, got)
		}
	}
}

func newScopedRouter(manager *auth.JWTManager, enabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/", Auth(manager, enabled))
	group.GET("/read", RequireScope(auth.ScopeRead), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(OperatorKey))
	})
	group.POST("/operate", RequireScope(auth.ScopeOperate), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(OperatorKey))
	})
	return router
}

func TestAuthAndScopes(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	router := newScopedRouter(manager, true)

	readOnly, err := manager.GenerateToken("alice", []string{auth.ScopeRead})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	cases := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"missing token", http.MethodGet, "/read", "", http.StatusUnauthorized},
		{"bad header format", http.MethodGet, "/read", "Token abc", http.StatusUnauthorized},
		{"invalid token", http.MethodGet, "/read", "Bearer nope", http.StatusUnauthorized},
		{"read scope reads", http.MethodGet, "/read", "Bearer " + readOnly, http.StatusOK},
		{"read scope cannot operate", http.MethodPost, "/operate", "Bearer " + readOnly, http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	manager := auth.NewJWTManager("test-secret", time.Hour)
	router := newScopedRouter(manager, true)

	token, err := manager.GenerateToken("bob", []string{auth.ScopeOperate})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/operate?token="+token, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "bob" {
		t.Fatalf("expected bob to operate, got %d %q", w.Code, w.Body.String())
	}
}

func TestAuthDisabledRunsAsAnonymousOperator(t *testing.T) {
	router := newScopedRouter(nil, false)

	req := httptest.NewRequest(http.MethodPost, "/operate", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Body.String() != "anonymous" {
		t.Fatalf("expected anonymous operator, got %d %q", w.Code, w.Body.String())
	}
}

type captureRecorder struct {
	mu         sync.Mutex
	activities []*logging.Activity
}

func (r *captureRecorder) LogActivity(activity *logging.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = append(r.activities, activity)
	return nil
}

func TestAuditRecordsMutatingRequestsOnly(t *testing.T) {
	gin.SetMode(gin.TestMode)
	recorder := &captureRecorder{}

	router := gin.New()
	router.Use(Audit(recorder))
	router.GET("/servers/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.DELETE("/servers/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, "/servers/s1", nil))
	}

	if len(recorder.activities) != 1 {
		t.Fatalf("expected one audited request, got %d", len(recorder.activities))
	}
	got := recorder.activities[0]
	if got.ServerID != "s1" || got.ActivityType != ActivityTypeAPIRequest {
		t.Fatalf("unexpected activity: %+v", got)
	}
	if got.Description != "DELETE /servers/:id" || got.Success {
		t.Fatalf("expected failed DELETE to be recorded, got %+v", got)
	}
	if got.Metadata["status"] != http.StatusNotFound {
		t.Fatalf("expected status 404 in metadata, got %v", got.Metadata["status"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(SecurityHeaders(), ContentSecurityPolicy(false))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected X-Frame-Options header")
	}
	if got := w.Header().Get("Content-Security-Policy"); got == "" {
		t.Fatalf("expected CSP header")
	}
}
