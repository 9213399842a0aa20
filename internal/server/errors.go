package server

import (
	"errors"
	"fmt"
)

var (
	// ErrFilesystem covers directory creation and log file open failures.
	ErrFilesystem = errors.New("filesystem error")
	// ErrSpawn means the executable could not be started.
	ErrSpawn = errors.New("spawn error")
	// ErrStream covers failures reading process output or writing logs.
	ErrStream = errors.New("stream error")
	// ErrMalformedLine is a stream error for output that is not valid line text.
	ErrMalformedLine = fmt.Errorf("%w: malformed line", ErrStream)
)

// Stages at which an operation can fail.
const (
	StageDirectories = "ensure_directories"
	StageOpenLog     = "open_log"
	StageSpawn       = "spawn"
	StageDrain       = "drain"
	StageCloseLog    = "close_log"
)

// SpawnError is returned by Runner.Start when the OS refuses to start the process.
type SpawnError struct {
	Path string
	Dir  string
	Err  error
}

func (e *SpawnError) Error() string {
	if e.Dir != "" {
		return fmt.Sprintf("failed to start %s in %s: %v", e.Path, e.Dir, e.Err)
	}
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

func (e *SpawnError) Is(target error) bool { return target == ErrSpawn }

// OperationError is the terminal error of a fatal lifecycle operation.
type OperationError struct {
	Kind     OperationKind
	ServerID string
	Stage    string
	Err      error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s for server %s failed at %s: %v", e.Kind, e.ServerID, e.Stage, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }
