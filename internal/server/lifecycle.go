package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/TheGojiOG/athena/internal/config"
	"github.com/TheGojiOG/athena/internal/logging"
	"github.com/TheGojiOG/athena/internal/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// OperationKind names the two lifecycle workflows.
type OperationKind string

const (
	OperationInstallUpdate OperationKind = "install_update"
	OperationLaunch        OperationKind = "launch"
)

// OperationState follows requested -> directories_ensured -> process_started
// -> draining -> completed | fatal.
type OperationState string

const (
	StateRequested          OperationState = "requested"
	StateDirectoriesEnsured OperationState = "directories_ensured"
	StateProcessStarted     OperationState = "process_started"
	StateDraining           OperationState = "draining"
	StateCompleted          OperationState = "completed"
	StateFatal              OperationState = "fatal"
)

// Operation is the record of one install/update or launch.
type Operation struct {
	ID         string
	Kind       OperationKind
	ServerID   string
	State      OperationState
	LogPath    string
	StderrPath string
	Lines      int
	PID        int
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	// Exit receives the exit status once the process is reaped. It is nil
	// when no process was started.
	Exit <-chan ExitStatus
}

// OutputLine is one drained line as seen by observers.
type OutputLine struct {
	OperationID string        `json:"operation_id"`
	Kind        OperationKind `json:"kind"`
	Stream      string        `json:"stream"`
	Text        string        `json:"text"`
	Timestamp   time.Time     `json:"timestamp"`
}

// LineObserver receives every drained line. Implementations must not block.
type LineObserver interface {
	ObserveLine(serverID string, line OutputLine)
}

// OperationRecorder keeps a durable record of operation outcomes.
type OperationRecorder interface {
	LogOperation(serverID, operationID, activityType string, success bool, errorMsg string, metadata map[string]interface{}) error
	LogProcessExit(serverID, operationID string, exitCode int, duration time.Duration, errorMsg string) error
}

// LifecycleManager runs install/update and launch operations for servers.
type LifecycleManager struct {
	paths    *PathResolver
	starter  ProcessStarter
	steam    config.SteamConfig
	game     config.GameConfig
	observer LineObserver
	recorder OperationRecorder
	locks    *serverLocks
	pending  sync.WaitGroup
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager(paths *PathResolver, starter ProcessStarter, steam config.SteamConfig, game config.GameConfig) *LifecycleManager {
	return &LifecycleManager{
		paths:   paths,
		starter: starter,
		steam:   steam,
		game:    game,
		locks:   newServerLocks(),
	}
}

// SetObserver must be called before any operation runs.
func (lm *LifecycleManager) SetObserver(observer LineObserver) {
	lm.observer = observer
}

// SetRecorder must be called before any operation runs.
func (lm *LifecycleManager) SetRecorder(recorder OperationRecorder) {
	lm.recorder = recorder
}

// Paths exposes the resolver used for every operation.
func (lm *LifecycleManager) Paths() *PathResolver {
	return lm.paths
}

// InstallUpdate runs steamcmd against the server's install directory and
// returns when its output has been drained into {logs}/steamcmd.log.
func (lm *LifecycleManager) InstallUpdate(srv *models.ServerInstance, creds SteamCredentials) (*Operation, error) {
	return lm.installUpdate(newOperation(OperationInstallUpdate, srv.ID), creds)
}

// Launch starts the server binary from its install directory and returns
// when the server's stdout closes.
func (lm *LifecycleManager) Launch(srv *models.ServerInstance) (*Operation, error) {
	return lm.launch(newOperation(OperationLaunch, srv.ID), cloneServer(srv))
}

// DispatchInstallUpdate runs InstallUpdate in the background and returns the
// operation id. Failures are reported through the log and the recorder.
func (lm *LifecycleManager) DispatchInstallUpdate(srv *models.ServerInstance, creds SteamCredentials) string {
	op := newOperation(OperationInstallUpdate, srv.ID)
	lm.dispatch(op, func() (*Operation, error) {
		return lm.installUpdate(op, creds)
	})
	return op.ID
}

// DispatchLaunch runs Launch in the background and returns the operation id.
func (lm *LifecycleManager) DispatchLaunch(srv *models.ServerInstance) string {
	op := newOperation(OperationLaunch, srv.ID)
	snapshot := cloneServer(srv)
	lm.dispatch(op, func() (*Operation, error) {
		return lm.launch(op, snapshot)
	})
	return op.ID
}

func (lm *LifecycleManager) installUpdate(op *Operation, creds SteamCredentials) (*Operation, error) {
	return lm.execute(op, func(p Paths) (Command, string, string) {
		cmd := Command{
			Path: lm.steam.SteamCMDPath,
			Args: InstallArgs(p.Install, creds, lm.steam.AppID),
		}
		return cmd, p.InstallLog(), p.InstallStderrLog()
	})
}

func (lm *LifecycleManager) launch(op *Operation, srv *models.ServerInstance) (*Operation, error) {
	return lm.execute(op, func(p Paths) (Command, string, string) {
		cmd := Command{
			Path: lm.game.Executable,
			Dir:  p.Install,
			Args: LaunchArgs(srv, p.Profiles),
		}
		return cmd, p.ServerLog(), p.ServerStderrLog()
	})
}

// Wait blocks until every dispatched operation has finished.
func (lm *LifecycleManager) Wait() {
	lm.pending.Wait()
}

// WaitTimeout is Wait with an upper bound. It reports whether all operations finished.
func (lm *LifecycleManager) WaitTimeout(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		lm.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Busy reports whether an operation for serverID is running or queued.
func (lm *LifecycleManager) Busy(serverID string) bool {
	return lm.locks.held(serverID)
}

func (lm *LifecycleManager) dispatch(op *Operation, run func() (*Operation, error)) {
	lm.pending.Add(1)
	go func() {
		defer lm.pending.Done()
		if _, err := run(); err != nil {
			logging.ForServer(op.ServerID).Error("operation failed",
				"operation_id", op.ID,
				"kind", string(op.Kind),
				"error", err,
			)
		}
	}()
}

func (lm *LifecycleManager) execute(op *Operation, build func(Paths) (Command, string, string)) (*Operation, error) {
	unlock := lm.locks.lock(op.ServerID)
	defer unlock()

	logger := logging.ForServer(op.ServerID).With("operation_id", op.ID, "kind", string(op.Kind))
	op.StartedAt = time.Now().UTC()
	logger.Info("operation requested")

	paths := lm.paths.Resolve(op.ServerID)
	if err := paths.Ensure(); err != nil {
		return lm.fail(op, logger, StageDirectories, fmt.Errorf("%w: %w", ErrFilesystem, err))
	}
	op.State = StateDirectoriesEnsured

	cmd, stdoutPath, stderrPath := build(paths)
	op.LogPath = stdoutPath
	op.StderrPath = stderrPath

	stdoutSink, err := OpenLogSink(stdoutPath)
	if err != nil {
		return lm.fail(op, logger, StageOpenLog, fmt.Errorf("%w: %w", ErrFilesystem, err))
	}
	defer stdoutSink.Close()

	stderrSink, err := OpenLogSink(stderrPath)
	if err != nil {
		return lm.fail(op, logger, StageOpenLog, fmt.Errorf("%w: %w", ErrFilesystem, err))
	}
	defer stderrSink.Close()

	logger.Info("starting process", "command", cmd.String(), "dir", cmd.Dir)
	run, err := lm.starter.Start(cmd)
	if err != nil {
		if !errors.Is(err, ErrSpawn) {
			err = fmt.Errorf("%w: %w", ErrSpawn, err)
		}
		return lm.fail(op, logger, StageSpawn, err)
	}
	op.PID = run.PID()
	op.State = StateProcessStarted
	op.Exit = lm.watchExit(op, run, logger)
	logger.Info("process started", "pid", op.PID)

	op.State = StateDraining
	lines, err := lm.drain(op, run, stdoutSink, stderrSink)
	op.Lines = lines
	if err != nil {
		return lm.fail(op, logger, StageDrain, err)
	}

	if err := errors.Join(stdoutSink.Close(), stderrSink.Close()); err != nil {
		return lm.fail(op, logger, StageCloseLog, fmt.Errorf("%w: %w", ErrStream, err))
	}

	op.State = StateCompleted
	op.FinishedAt = time.Now().UTC()
	logger.Info("operation completed", "lines", op.Lines, "duration", op.FinishedAt.Sub(op.StartedAt))
	lm.record(op)
	return op, nil
}

// drain copies stdout and stderr into their sinks until both streams end.
// A failure on either stream closes both so the other drain returns too.
func (lm *LifecycleManager) drain(op *Operation, run *ProcessRun, stdoutSink, stderrSink *LogSink) (int, error) {
	var g errgroup.Group
	var stdoutLines int

	g.Go(func() error {
		n, err := lm.pump(op, "stdout", run.Stdout(), stdoutSink)
		stdoutLines = n
		if err != nil {
			run.CloseOutput()
		}
		return err
	})
	g.Go(func() error {
		_, err := lm.pump(op, "stderr", run.Stderr(), stderrSink)
		if err != nil {
			run.CloseOutput()
		}
		return err
	})

	err := g.Wait()
	run.CloseOutput()
	return stdoutLines, err
}

func (lm *LifecycleManager) pump(op *Operation, stream string, seq *LineSequence, sink *LogSink) (int, error) {
	n := 0
	for seq.Next() {
		text := seq.Text()
		if err := sink.WriteLine(text); err != nil {
			return n, fmt.Errorf("%w: %w", ErrStream, err)
		}
		n++

		if lm.observer != nil {
			lm.observer.ObserveLine(op.ServerID, OutputLine{
				OperationID: op.ID,
				Kind:        op.Kind,
				Stream:      stream,
				Text:        text,
				Timestamp:   time.Now().UTC(),
			})
		}
	}
	return n, seq.Err()
}

// watchExit forwards the run's exit status to the operation once it has
// been logged and recorded. It never gates completion.
func (lm *LifecycleManager) watchExit(op *Operation, run *ProcessRun, logger *slog.Logger) <-chan ExitStatus {
	out := make(chan ExitStatus, 1)
	serverID, operationID := op.ServerID, op.ID

	go func() {
		status := <-run.Exit()

		errMsg := ""
		if status.Err != nil {
			errMsg = status.Err.Error()
		}
		logger.Info("process exited", "exit_code", status.Code, "duration", status.Duration)

		if lm.recorder != nil {
			if err := lm.recorder.LogProcessExit(serverID, operationID, status.Code, status.Duration, errMsg); err != nil {
				logger.Warn("failed to record process exit", "error", err)
			}
		}
		out <- status
	}()

	return out
}

func (lm *LifecycleManager) fail(op *Operation, logger *slog.Logger, stage string, err error) (*Operation, error) {
	opErr := &OperationError{Kind: op.Kind, ServerID: op.ServerID, Stage: stage, Err: err}
	op.State = StateFatal
	op.Err = opErr
	op.FinishedAt = time.Now().UTC()

	logger.Error("operation fatal", "stage", stage, "error", err)
	lm.record(op)
	return op, opErr
}

func (lm *LifecycleManager) record(op *Operation) {
	if lm.recorder == nil {
		return
	}

	activityType := logging.ActivityLaunch
	if op.Kind == OperationInstallUpdate {
		activityType = logging.ActivityInstallUpdate
	}

	errMsg := ""
	if op.Err != nil {
		errMsg = op.Err.Error()
	}

	metadata := map[string]interface{}{
		"state":       string(op.State),
		"log_path":    op.LogPath,
		"lines":       op.Lines,
		"duration_ms": op.FinishedAt.Sub(op.StartedAt).Milliseconds(),
	}
	if op.PID != 0 {
		metadata["pid"] = op.PID
	}

	if err := lm.recorder.LogOperation(op.ServerID, op.ID, activityType, op.State == StateCompleted, errMsg, metadata); err != nil {
		logging.ForServer(op.ServerID).Warn("failed to record operation", "operation_id", op.ID, "error", err)
	}
}

func newOperation(kind OperationKind, serverID string) *Operation {
	return &Operation{
		ID:       uuid.New().String(),
		Kind:     kind,
		ServerID: serverID,
		State:    StateRequested,
	}
}

// cloneServer copies the fields an operation reads so later edits to the
// caller's record cannot leak into a running operation.
func cloneServer(srv *models.ServerInstance) *models.ServerInstance {
	clone := *srv
	clone.ExtraFlags = append([]string(nil), srv.ExtraFlags...)
	return &clone
}
