package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheGojiOG/athena/internal/auth"
	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/database"
	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/TheGojiOG/athena/internal/server"
	"github.com/TheGojiOG/athena/internal/store"
	"github.com/TheGojiOG/athena/internal/websocket"
	"github.com/gin-gonic/gin"
)

func TestParseDurationFallback(t *testing.T) {
	if got := parseDuration("not-a-duration", 15*time.Minute); got != 15*time.Minute {
		t.Fatalf("expected 15 minute fallback, got %v", got)
	}
	if got := parseDuration("", time.Second); got != time.Second {
		t.Fatalf("expected fallback for empty value, got %v", got)
	}
	if got := parseDuration("90s", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}

func setupTestRouter(t *testing.T) (*gin.Engine, func(), *auth.JWTManager) {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Auth.JWTSecret = "router-test-secret"
	cfg.Security.RateLimit.Enabled = false
	cfg.Server.ShutdownTimeout = "1s"
	cfg.Storage.InstallsRoot = filepath.Join(root, "installs")
	cfg.Storage.ProfilesRoot = filepath.Join(root, "profiles")
	cfg.Storage.LogsRoot = filepath.Join(root, "logs")

	db, err := database.NewDB(filepath.Join(root, "athena.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	activity, err := logging.NewActivityLogger(db.DB, filepath.Join(root, "activity"))
	if err != nil {
		t.Fatalf("failed to create activity logger: %v", err)
	}
	t.Cleanup(func() { activity.Close() })

	lifecycle := server.NewLifecycleManager(
		server.NewPathResolver(server.RootsFromConfig(cfg.Storage)),
		server.NewRunner(),
		cfg.Steam,
		cfg.Game,
	)

	router, shutdown := SetupRouter(cfg, store.NewServerStore(db.DB), lifecycle, activity, websocket.NewHub())
	return router, shutdown, auth.NewJWTManager(cfg.Auth.JWTSecret, time.Hour)
}

func TestRouterHealthIsPublic(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", w.Code)
	}
}

func TestRouterEnforcesScopes(t *testing.T) {
	router, _, tokens := setupTestRouter(t)

	reader, err := tokens.GenerateToken("viewer", []string{auth.ScopeRead})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	operator, err := tokens.GenerateToken("ops", []string{auth.ScopeOperate})
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	body := []byte(`{"name":"alpha","port":2302,"limit_fps":50}`)
	cases := []struct {
		name   string
		method string
		path   string
		token  string
		body   []byte
		want   int
	}{
		{"anonymous list", http.MethodGet, "/api/v1/servers", "", nil, http.StatusUnauthorized},
		{"reader lists", http.MethodGet, "/api/v1/servers", reader, nil, http.StatusOK},
		{"reader cannot create", http.MethodPost, "/api/v1/servers", reader, body, http.StatusForbidden},
		{"operator creates", http.MethodPost, "/api/v1/servers", operator, body, http.StatusCreated},
		{"operator starts unknown", http.MethodPost, "/api/v1/servers/missing/start", operator, nil, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestShutdownReturnsWithNoOperations(t *testing.T) {
	_, shutdown, _ := setupTestRouter(t)

	done := make(chan struct{})
	go func() {
		shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("shutdown did not return")
	}
}
