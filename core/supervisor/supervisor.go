package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/sessioncore/core/logger"
	"github.com/dmitrymomot/sessioncore/pkg/async"
	"github.com/dmitrymomot/sessioncore/pkg/clock"
)

// Job is a supervised unit of work. It must return once ctx is cancelled.
// Arguments are captured by the closure.
type Job func(ctx context.Context) error

// RunInfo describes the latest run of a named task.
type RunInfo struct {
	Name       string    `json:"name"`
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
	Err        error     `json:"-"`
}

// Running reports whether the run has not finished yet.
func (r RunInfo) Running() bool {
	return r.FinishedAt.IsZero()
}

type task struct {
	name      string
	runID     uuid.UUID
	startedAt time.Time
	cancel    context.CancelFunc
	future    *async.ExecFuture
	done      chan struct{} // Closed once the run is recorded and deregistered
}

// Supervisor starts, names and cancels background jobs, with at most one
// running instance per name.
type Supervisor struct {
	mu    sync.Mutex
	tasks map[string]*task
	last  map[string]RunInfo

	shutdownTimeout time.Duration
	logger          *slog.Logger
	clock           clock.Clock

	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// Stats provides observability metrics for monitoring and debugging.
type Stats struct {
	Running   int
	Started   int64
	Completed int64 // Runs that returned nil or were cancelled
	Failed    int64 // Runs that returned an error or panicked
	Skipped   int64 // Start calls ignored because the name was already running
}

// New creates a supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		tasks:           make(map[string]*task),
		last:            make(map[string]RunInfo),
		shutdownTimeout: DefaultConfig().ShutdownTimeout,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:           clock.Real{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewFromConfig creates a supervisor from configuration. Additional options override config values.
func NewFromConfig(cfg Config, opts ...Option) *Supervisor {
	return New(append([]Option{WithShutdownTimeout(cfg.ShutdownTimeout)}, opts...)...)
}

// Start runs job under name. It is a no-op returning false when a task with that
// name is still running.
func (s *Supervisor) Start(name string, job Job) bool {
	return s.StartContext(context.Background(), name, job)
}

// StartContext is Start with a parent context for values. Cancelling ctx does not
// stop the task; only Stop does.
func (s *Supervisor) StartContext(ctx context.Context, name string, job Job) bool {
	if name == "" || job == nil {
		s.logger.WarnContext(ctx, "task start ignored: missing name or job", logger.TaskName(name))
		return false
	}

	s.mu.Lock()
	if _, ok := s.tasks[name]; ok {
		s.mu.Unlock()
		s.skipped.Add(1)
		s.logger.InfoContext(ctx, "task already running", logger.TaskName(name))
		return false
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t := &task{
		name:      name,
		runID:     newRunID(),
		startedAt: s.clock.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.tasks[name] = t
	s.last[name] = RunInfo{Name: name, RunID: t.runID.String(), StartedAt: t.startedAt}
	t.future = async.Go(runCtx, job)
	s.mu.Unlock()

	s.started.Add(1)
	s.logger.InfoContext(ctx, "task started",
		logger.TaskName(name),
		logger.ID("run_id", t.runID.String()))

	go s.watch(t)
	return true
}

func newRunID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}

// watch records the run outcome and deregisters the task once the job returns.
func (s *Supervisor) watch(t *task) {
	defer close(t.done)

	err := t.future.Await()
	t.cancel()

	finished := s.clock.Now()
	failed := err != nil && !errors.Is(err, context.Canceled)
	if failed {
		s.failed.Add(1)
	} else {
		s.completed.Add(1)
	}

	s.mu.Lock()
	// A newer run of the same name must stay registered
	if cur, ok := s.tasks[t.name]; ok && cur == t {
		delete(s.tasks, t.name)
	}
	if info, ok := s.last[t.name]; ok && info.RunID == t.runID.String() {
		info.FinishedAt = finished
		info.Err = err
		s.last[t.name] = info
	}
	s.mu.Unlock()

	attrs := []any{
		logger.TaskName(t.name),
		logger.ID("run_id", t.runID.String()),
		logger.Duration(finished.Sub(t.startedAt)),
	}
	switch {
	case err == nil:
		s.logger.Info("task completed", attrs...)
	case !failed:
		s.logger.Info("task cancelled", attrs...)
	case errors.Is(err, async.ErrPanic):
		s.logger.Error("task panicked", append(attrs, logger.Error(err))...)
	default:
		s.logger.Error("task failed", append(attrs, logger.Error(err))...)
	}
}

// Stop cancels the named task and waits for it to return, bounded by the shutdown
// timeout. The entry is removed whatever the outcome. Stopping an unknown name is a no-op.
func (s *Supervisor) Stop(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	t.cancel()

	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()

	var err error
	select {
	case <-t.done:
	case <-timer.C:
		s.logger.Warn("task ignored cancellation, abandoning it",
			logger.TaskName(name),
			slog.Duration("timeout", s.shutdownTimeout))
		err = fmt.Errorf("%w: %s after %s", ErrStopTimeout, name, s.shutdownTimeout)
	}

	s.mu.Lock()
	if cur, ok := s.tasks[name]; ok && cur == t {
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	return err
}

// StopAll stops every running task in parallel and returns the joined stop errors.
func (s *Supervisor) StopAll() error {
	names := s.Names()

	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, name := range names {
		g.Go(func() error {
			if err := s.Stop(name); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// Running reports whether a task with the name is registered.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Names returns running task names in lexical order.
func (s *Supervisor) Names() []string {
	s.mu.Lock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.mu.Unlock()

	slices.Sort(names)
	return names
}

// LastRun returns the latest run of the named task.
func (s *Supervisor) LastRun(name string) (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.last[name]
	return info, ok
}

// Stats returns current supervisor statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	running := len(s.tasks)
	s.mu.Unlock()

	return Stats{
		Running:   running,
		Started:   s.started.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
	}
}

// Healthcheck returns a check verifying that every named task is running.
//
//	ready := health.Readiness(log, sup.Healthcheck("broker.dispatch", "registry.cleanup"))
func (s *Supervisor) Healthcheck(names ...string) func(context.Context) error {
	return func(context.Context) error {
		var missing []string
		for _, name := range names {
			if !s.Running(name) {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return errors.Join(ErrHealthcheckFailed, ErrTaskNotRunning, fmt.Errorf("missing: %v", missing))
		}
		return nil
	}
}
