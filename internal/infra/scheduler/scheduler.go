// Package scheduler runs periodic background jobs (funnel visit flushing,
// subscription expiry) on cron specs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/matiasleandrokruk/agencyhub/internal/infra/metrics"
)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("scheduler: unknown job")

// JobFunc is the unit of scheduled work.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner. Overlapping runs of the same job are skipped
// and panics are recovered and logged.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu   sync.RWMutex
	ctx  context.Context
	jobs map[string]JobFunc
}

// New returns a Scheduler that is not started yet.
func New(logger *zap.Logger) *Scheduler {
	cl := cronLogger{l: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		)),
		logger: logger,
		ctx:    context.Background(),
		jobs:   make(map[string]JobFunc),
	}
}

// Add registers fn under name, triggered by spec ("@every 10s", "0 * * * *", ...).
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("scheduler: job %q already registered", name)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.runJob(name, fn) }); err != nil {
		return fmt.Errorf("scheduler: add %q (%s): %w", name, spec, err)
	}
	s.jobs[name] = fn
	return nil
}

// RunNow executes the named job synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	fn, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return fn(ctx)
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

func (s *Scheduler) runJob(name string, fn JobFunc) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	start := time.Now()
	err := fn(ctx)
	metrics.RecordJobRun(name, time.Since(start), err)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("scheduled job failed", zap.String("job", name), zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
