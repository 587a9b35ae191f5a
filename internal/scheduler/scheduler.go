package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled invocation. It receives the scheduler's context.
type Job func(ctx context.Context)

// Scheduler runs registered jobs on cron specs with a seconds field.
// A firing is skipped while the previous run of the same job is still going.
type Scheduler struct {
	Cron   *cron.Cron
	Ctx    context.Context
	logger *slog.Logger
	jobs   map[string]job
}

type job struct {
	id cron.EntryID
	fn Job
}

// NewScheduler creates a new Scheduler bound to ctx.
func NewScheduler(ctx context.Context, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Ctx:    ctx,
		logger: logger,
		jobs:   make(map[string]job),
	}
}

// Register adds fn under name on spec.
func (s *Scheduler) Register(name, spec string, fn Job) error {
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("register %s task: already registered", name)
	}
	id, err := s.Cron.AddFunc(spec, func() {
		s.logger.Info("running scheduled task", "task", name)
		fn(s.Ctx)
	})
	if err != nil {
		return fmt.Errorf("register %s task: %w", name, err)
	}
	s.jobs[name] = job{id: id, fn: fn}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	for name, j := range s.jobs {
		s.logger.Info("scheduler started", "task", name, "next", s.Cron.Entry(j.id).Next)
	}
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next returns the next firing of name, zero if unknown or not started.
func (s *Scheduler) Next(name string) time.Time {
	j, ok := s.jobs[name]
	if !ok {
		return time.Time{}
	}
	return s.Cron.Entry(j.id).Next
}

// RunNow executes name immediately on the calling goroutine.
func (s *Scheduler) RunNow(name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	j.fn(s.Ctx)
	return nil
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
