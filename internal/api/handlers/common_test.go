package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/TheGojiOG/athena/internal/database"
	"github.com/TheGojiOG/athena/internal/models"
	"github.com/TheGojiOG/athena/internal/server"
	"github.com/TheGojiOG/athena/internal/store"
	"github.com/gin-gonic/gin"
)

// fakeLifecycle records dispatches instead of running processes.
type fakeLifecycle struct {
	paths *server.PathResolver

	mu       sync.Mutex
	upgrades []string
	launches []string
	creds    []server.SteamCredentials
	busy     map[string]bool
	nextOpID string
}

func newFakeLifecycle(root string) *fakeLifecycle {
	return &fakeLifecycle{
		paths: server.NewPathResolver(server.Roots{
			Installs: filepath.Join(root, "installs"),
			Profiles: filepath.Join(root, "profiles"),
			Logs:     filepath.Join(root, "logs"),
		}),
		busy:     make(map[string]bool),
		nextOpID: "op-1",
	}
}

func (f *fakeLifecycle) DispatchInstallUpdate(srv *models.ServerInstance, creds server.SteamCredentials) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upgrades = append(f.upgrades, srv.ID)
	f.creds = append(f.creds, creds)
	return f.nextOpID
}

func (f *fakeLifecycle) DispatchLaunch(srv *models.ServerInstance) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launches = append(f.launches, srv.ID)
	return f.nextOpID
}

func (f *fakeLifecycle) Busy(serverID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy[serverID]
}

func (f *fakeLifecycle) Paths() *server.PathResolver {
	return f.paths
}

func newTestStore(t *testing.T) *store.ServerStore {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "athena.db"))
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	return store.NewServerStore(db.DB)
}

func seedServer(t *testing.T, st *store.ServerStore, name string) *models.ServerInstance {
	t.Helper()
	srv, err := models.NewServer(models.CreateServerRequest{Name: name, Port: 2302, LimitFPS: 50})
	if err != nil {
		t.Fatalf("failed to build server: %v", err)
	}
	created, err := st.Create(srv, nil)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	return created
}

func newTestContext(method, target string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	return c, w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}
