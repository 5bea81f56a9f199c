// Package scheduler runs recurring background jobs under a suture supervisor.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/triage-ai/botsentry/internal/metrics"
)

// Job is one unit of recurring work.
type Job func(ctx context.Context) error

// Option customises a scheduled job.
type Option func(*periodic)

// RunAtStart runs the job once as soon as it is scheduled, then on every tick.
func RunAtStart() Option {
	return func(p *periodic) { p.immediate = true }
}

// Scheduler owns a supervisor with one service per scheduled job.
type Scheduler struct {
	sup         *suture.Supervisor
	stopTimeout time.Duration
	logger      *zap.Logger

	mu      sync.Mutex
	tokens  map[string]suture.ServiceToken
	running atomic.Bool
}

// New creates an idle Scheduler. Jobs start running after Start.
func New(logger *zap.Logger) *Scheduler {
	stopTimeout := 10 * time.Second
	return &Scheduler{
		sup: suture.New("botsentry-scheduler", suture.Spec{
			EventHook:        zapHook(logger),
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			Timeout:          stopTimeout,
		}),
		stopTimeout: stopTimeout,
		logger:      logger,
		tokens:      make(map[string]suture.ServiceToken),
	}
}

// Start runs the supervisor in the background until ctx is cancelled. The
// returned channel yields the supervisor's exit error.
func (s *Scheduler) Start(ctx context.Context) <-chan error {
	s.running.Store(true)
	return s.sup.ServeBackground(ctx)
}

// Add supervises a long-running service alongside the scheduled jobs.
func (s *Scheduler) Add(svc suture.Service) suture.ServiceToken {
	return s.sup.Add(svc)
}

// Schedule registers job to run every interval. Scheduling a name that is
// already registered replaces the previous job.
func (s *Scheduler) Schedule(name string, interval time.Duration, job Job, opts ...Option) error {
	if interval <= 0 {
		return fmt.Errorf("Schedule: job %q: interval must be positive", name)
	}
	if job == nil {
		return fmt.Errorf("Schedule: job %q: nil job", name)
	}
	if err := s.Unschedule(name); err != nil {
		return fmt.Errorf("Schedule: %w", err)
	}

	p := &periodic{name: name, interval: interval, job: job, logger: s.logger}
	for _, opt := range opts {
		opt(p)
	}

	s.mu.Lock()
	s.tokens[name] = s.sup.Add(p)
	s.mu.Unlock()

	s.logger.Info("job scheduled",
		zap.String("job", name),
		zap.Duration("interval", interval),
		zap.Bool("run_at_start", p.immediate),
	)
	return nil
}

// Unschedule stops and removes a job. Unknown names are a no-op.
func (s *Scheduler) Unschedule(name string) error {
	s.mu.Lock()
	token, ok := s.tokens[name]
	delete(s.tokens, name)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	var err error
	if s.running.Load() {
		err = s.sup.RemoveAndWait(token, s.stopTimeout)
	} else {
		err = s.sup.Remove(token)
	}
	if err != nil {
		return fmt.Errorf("Unschedule %s: %w", name, err)
	}
	s.logger.Info("job unscheduled", zap.String("job", name))
	return nil
}

// IsScheduled reports whether name is registered.
func (s *Scheduler) IsScheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tokens[name]
	return ok
}

// periodic adapts a Job to suture.Service.
type periodic struct {
	name      string
	interval  time.Duration
	immediate bool
	job       Job
	logger    *zap.Logger
}

func (p *periodic) Serve(ctx context.Context) error {
	if p.immediate {
		p.run(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// run executes the job once. Job errors are logged and counted; they never
// restart the service.
func (p *periodic) run(ctx context.Context) {
	start := time.Now()
	err := p.job(ctx)
	if err != nil {
		if ctx.Err() != nil {
			metrics.JobRuns.WithLabelValues(p.name, "cancelled").Inc()
			return
		}
		metrics.JobRuns.WithLabelValues(p.name, "error").Inc()
		p.logger.Error("scheduled job failed",
			zap.String("job", p.name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	metrics.JobRuns.WithLabelValues(p.name, "success").Inc()
	p.logger.Debug("scheduled job finished",
		zap.String("job", p.name),
		zap.Duration("duration", time.Since(start)),
	)
}

func (p *periodic) String() string {
	return "job:" + p.name
}

// zapHook routes supervisor events to the logger.
func zapHook(logger *zap.Logger) suture.EventHook {
	return func(e suture.Event) {
		fields := make([]zap.Field, 0, 6)
		for k, v := range e.Map() {
			fields = append(fields, zap.Any(k, v))
		}
		switch e.Type() {
		case suture.EventTypeServicePanic, suture.EventTypeStopTimeout:
			logger.Error(e.String(), fields...)
		case suture.EventTypeServiceTerminate, suture.EventTypeBackoff:
			logger.Warn(e.String(), fields...)
		default:
			logger.Info(e.String(), fields...)
		}
	}
}
