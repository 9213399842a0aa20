package database

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/TheGojiOG/athena/internal/config"
)

func TestOpenAndMigrate(t *testing.T) {
	db, err := Open(config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "data", "athena.db"),
		MaxConnections: 4,
	})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("failed to query migrations: %v", err)
	}
	if count != len(migrations) {
		t.Fatalf("expected %d migrations, got %d", len(migrations), count)
	}

	// second run is a no-op
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to re-run migrations: %v", err)
	}
}

func TestServersDefaultWorldAndFlags(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "athena.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if _, err := db.Exec("INSERT INTO servers (id, name, port) VALUES ('s1', 'main', 2302)"); err != nil {
		t.Fatalf("failed to insert server: %v", err)
	}

	var world, flags string
	if err := db.QueryRow("SELECT world, extra_flags FROM servers WHERE id = 's1'").Scan(&world, &flags); err != nil {
		t.Fatalf("failed to read server: %v", err)
	}
	if world != "empty" || flags != "[]" {
		t.Fatalf("unexpected defaults: world=%q flags=%q", world, flags)
	}
}

func TestBuildSQLiteDSNEnablesForeignKeys(t *testing.T) {
	dsn, err := buildSQLiteDSN("relative/athena.db")
	if err != nil {
		t.Fatalf("failed to build dsn: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:/") || !strings.Contains(dsn, "foreign_keys(ON)") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}
