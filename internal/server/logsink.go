package server

import (
	"fmt"
	"os"
	"sync"
)

// LogSink appends drained output lines to one file for the lifetime of a
// single process run. It never creates directories; callers ensure the
// parent exists first.
type LogSink struct {
	path  string
	file  *os.File
	mu    sync.Mutex
	lines int
}

// OpenLogSink creates path, or truncates the transcript of a previous run.
func OpenLogSink(path string) (*LogSink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &LogSink{path: path, file: file}, nil
}

// WriteLine appends text and a newline in a single write.
func (s *LogSink) WriteLine(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("log sink %s is closed", s.path)
	}

	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	buf = append(buf, '\n')
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	s.lines++
	return nil
}

// Lines is the number of lines written through this sink.
func (s *LogSink) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

func (s *LogSink) Path() string {
	return s.path
}

// Close syncs and closes the file. Calling it twice is a no-op.
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	file := s.file
	s.file = nil

	syncErr := file.Sync()
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close log: %w", err)
	}
	if syncErr != nil {
		return fmt.Errorf("failed to sync log: %w", syncErr)
	}
	return nil
}
