package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrRunning is returned by RunNow while another run is in progress.
var ErrRunning = errors.New("sync already running")

type RunFunc func(ctx context.Context)

// Scheduler runs a job on a fixed interval, never more than one at a time.
type Scheduler struct {
	run        RunFunc
	interval   time.Duration
	runOnStart bool
	running    atomic.Bool
	logger     *slog.Logger
}

type Option func(*Scheduler)

// WithRunOnStart makes Start run the job once before the first tick.
func WithRunOnStart() Option {
	return func(s *Scheduler) {
		s.runOnStart = true
	}
}

func New(run RunFunc, interval time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		run:      run,
		interval: interval,
		logger:   logger.With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start blocks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval)

	if s.runOnStart {
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

// RunNow runs the job synchronously unless a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)

	s.run(ctx)
	return nil
}

// Trigger starts a run in the background and returns immediately. ctx must
// outlive the caller's request.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	go func() {
		defer s.running.Store(false)
		s.run(ctx)
	}()
	return nil
}

// Running reports whether a run is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) trigger(ctx context.Context) {
	if err := s.RunNow(ctx); errors.Is(err, ErrRunning) {
		s.logger.Warn("previous run still in progress, skipping tick")
	}
}
