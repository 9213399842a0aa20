package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/TheGojiOG/athena/internal/database"
)

func newTestActivityLogger(t *testing.T) (*ActivityLogger, *database.DB, string) {
	t.Helper()
	root := t.TempDir()
	logDir := filepath.Join(root, "logs")

	db, err := database.NewDB(filepath.Join(root, "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to create db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}

	logger, err := NewActivityLogger(db.DB, logDir)
	if err != nil {
		t.Fatalf("failed to create activity logger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })

	return logger, db, logDir
}

func TestActivityLoggerLogOperation(t *testing.T) {
	logger, db, logDir := newTestActivityLogger(t)

	if err := logger.LogOperation("server-1", "op-1", ActivityLaunch, false, "spawn failed", map[string]interface{}{"state": "fatal"}); err != nil {
		t.Fatalf("failed to log operation: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM activity_log WHERE operation_id = 'op-1'").Scan(&count); err != nil {
		t.Fatalf("failed to query activity log: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 activity row, got %d", count)
	}

	entries, err := os.ReadDir(logDir)
	if err != nil {
		t.Fatalf("failed to read log dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one daily activity file, got %d", len(entries))
	}

	if err := logger.CleanupOldActivities(24 * time.Hour); err != nil {
		t.Fatalf("failed to cleanup activities: %v", err)
	}
}

func TestActivityLoggerProcessExitRoundTrip(t *testing.T) {
	logger, _, _ := newTestActivityLogger(t)

	if err := logger.LogProcessExit("server-2", "op-2", 3, 1500*time.Millisecond, ""); err != nil {
		t.Fatalf("failed to log exit: %v", err)
	}

	activities, err := logger.GetServerActivities("server-2", 10)
	if err != nil {
		t.Fatalf("failed to get activities: %v", err)
	}
	if len(activities) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(activities))
	}

	got := activities[0]
	if got.ActivityType != ActivityProcessExit || got.OperationID != "op-2" {
		t.Fatalf("unexpected activity: %+v", got)
	}
	if got.Success {
		t.Fatalf("expected non-zero exit to be recorded as unsuccessful")
	}
	if code, ok := got.Metadata["exit_code"].(float64); !ok || code != 3 {
		t.Fatalf("expected exit_code 3 in metadata, got %v", got.Metadata["exit_code"])
	}
}
