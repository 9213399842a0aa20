package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLogSinkWritesOneRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")

	sink, err := OpenLogSink(path)
	if err != nil {
		t.Fatalf("failed to open sink: %v", err)
	}
	for _, line := range []string{"first", "", "third"} {
		if err := sink.WriteLine(line); err != nil {
			t.Fatalf("failed to write line: %v", err)
		}
	}
	if sink.Lines() != 3 {
		t.Fatalf("expected 3 lines, got %d", sink.Lines())
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("failed to close sink: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}

	reopened, err := OpenLogSink(path)
	if err != nil {
		t.Fatalf("failed to reopen sink: %v", err)
	}
	if err := reopened.WriteLine("next run"); err != nil {
		t.Fatalf("failed to write line: %v", err)
	}
	reopened.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	if string(data) != "next run\n" {
		t.Fatalf("unexpected log contents: %q", data)
	}
}

func TestLogSinkRequiresExistingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "server.log")

	if _, err := OpenLogSink(path); err == nil {
		t.Fatalf("expected open to fail when the directory is absent")
	}
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Fatalf("expected sink to not create directories")
	}
}

func TestLogSinkWriteAfterClose(t *testing.T) {
	sink, err := OpenLogSink(filepath.Join(t.TempDir(), "x.log"))
	if err != nil {
		t.Fatalf("failed to open sink: %v", err)
	}
	sink.Close()
	if err := sink.WriteLine("late"); err == nil {
		t.Fatalf("expected write after close to fail")
	}
}
