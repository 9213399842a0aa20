package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/TheGojiOG/athena/internal/logging"
)

const maxLineBytes = 1024 * 1024

// Command describes one external process. A relative Path is resolved
// against Dir.
type Command struct {
	Path string
	Dir  string
	Args []Arg
	// Env entries are appended to the daemon's environment.
	Env []string
}

// String renders the command for logs with secrets masked.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + Redact(c.Args)
}

// ExitStatus is delivered once per run when the process has been reaped.
type ExitStatus struct {
	Code     int
	Err      error
	Duration time.Duration
}

// ProcessRun is the handle to one started process.
type ProcessRun struct {
	pid       int
	stdout    *LineSequence
	stderr    *LineSequence
	exit      chan ExitStatus
	startedAt time.Time
}

func (r *ProcessRun) PID() int               { return r.pid }
func (r *ProcessRun) Stdout() *LineSequence  { return r.stdout }
func (r *ProcessRun) Stderr() *LineSequence  { return r.stderr }
func (r *ProcessRun) Exit() <-chan ExitStatus { return r.exit }

// CloseOutput closes both line sequences, unblocking any reader.
func (r *ProcessRun) CloseOutput() {
	r.stdout.Close()
	r.stderr.Close()
}

// Runner starts local processes without a shell.
type Runner struct{}

func NewRunner() *Runner {
	return &Runner{}
}

// Start launches c and returns once the process exists. Output is read
// through os.Pipe pairs owned by the run, so reaping the process never closes
// a reader that is still draining.
func (r *Runner) Start(c Command) (*ProcessRun, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Path: c.Path, Dir: c.Dir, Err: err}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, &SpawnError{Path: c.Path, Dir: c.Dir, Err: err}
	}

	cmd := exec.Command(c.Path, Strings(c.Args)...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutR.Close()
		stdoutW.Close()
		stderrR.Close()
		stderrW.Close()
		return nil, &SpawnError{Path: c.Path, Dir: c.Dir, Err: err}
	}

	// the child holds its own copies
	stdoutW.Close()
	stderrW.Close()

	run := &ProcessRun{
		pid:       cmd.Process.Pid,
		stdout:    NewLineSequence("stdout", stdoutR),
		stderr:    NewLineSequence("stderr", stderrR),
		exit:      make(chan ExitStatus, 1),
		startedAt: time.Now(),
	}

	logger := logging.L().With("component", "runner", "pid", run.pid, "path", c.Path)
	go func() {
		err := cmd.Wait()
		status := ExitStatus{Code: -1, Duration: time.Since(run.startedAt)}
		if cmd.ProcessState != nil {
			status.Code = cmd.ProcessState.ExitCode()
		}

		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			status.Err = err
			logger.Warn("process wait failed", "error", err)
		}
		run.exit <- status
	}()

	return run, nil
}

// LineSequence yields decoded lines from one output stream until EOF.
// It is not restartable.
type LineSequence struct {
	name      string
	r         io.ReadCloser
	scanner   *bufio.Scanner
	text      string
	err       error
	done      bool
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewLineSequence(name string, r io.ReadCloser) *LineSequence {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &LineSequence{name: name, r: r, scanner: scanner}
}

// Next blocks until a line is available. It returns false at end of stream
// or on error; check Err afterwards.
func (s *LineSequence) Next() bool {
	if s.done {
		return false
	}

	if !s.scanner.Scan() {
		s.done = true
		if err := s.scanner.Err(); err != nil && !s.closed.Load() {
			if errors.Is(err, bufio.ErrTooLong) {
				s.err = fmt.Errorf("%w: %s line longer than %d bytes", ErrMalformedLine, s.name, maxLineBytes)
			} else {
				s.err = fmt.Errorf("%w: reading %s: %w", ErrStream, s.name, err)
			}
		}
		return false
	}

	line := s.scanner.Text()
	if !utf8.ValidString(line) {
		s.done = true
		s.err = fmt.Errorf("%w: %s produced invalid UTF-8", ErrMalformedLine, s.name)
		return false
	}

	s.text = line
	return true
}

// Text is the line read by the last successful Next.
func (s *LineSequence) Text() string { return s.text }

// Err is nil after a clean end of stream.
func (s *LineSequence) Err() error { return s.err }

// Close releases the stream. A reader blocked in Next sees a clean end.
func (s *LineSequence) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		err = s.r.Close()
	})
	return err
}
