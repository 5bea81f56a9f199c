package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

func TestPeriodicImplementsService(t *testing.T) {
	var _ suture.Service = (*periodic)(nil)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSchedule_RunsRepeatedly(t *testing.T) {
	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := s.Start(ctx)

	var runs atomic.Int32
	if err := s.Schedule("tick", 10*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if !s.IsScheduled("tick") {
		t.Fatal("expected job to be scheduled")
	}

	waitFor(t, func() bool { return runs.Load() >= 3 })

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestSchedule_RunAtStart(t *testing.T) {
	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var runs atomic.Int32
	if err := s.Schedule("learn", time.Hour, func(context.Context) error {
		runs.Add(1)
		return nil
	}, RunAtStart()); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return runs.Load() == 1 })
}

func TestSchedule_ErrorsDoNotStopJob(t *testing.T) {
	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var runs atomic.Int32
	if err := s.Schedule("flaky", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return errors.New("feed unavailable")
	}); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool { return runs.Load() >= 3 })
}

func TestUnschedule_StopsJob(t *testing.T) {
	s := New(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var runs atomic.Int32
	if err := s.Schedule("sync", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return runs.Load() >= 1 })

	if err := s.Unschedule("sync"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IsScheduled("sync") {
		t.Fatal("job still registered after Unschedule")
	}

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != after {
		t.Errorf("job kept running after Unschedule: %d -> %d", after, got)
	}

	if err := s.Unschedule("sync"); err != nil {
		t.Errorf("second Unschedule should be a no-op, got %v", err)
	}
}

func TestSchedule_Validation(t *testing.T) {
	s := New(zap.NewNop())
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name     string
		interval time.Duration
		job      Job
	}{
		{"zero interval", 0, noop},
		{"negative interval", -time.Second, noop},
		{"nil job", time.Second, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Schedule("bad", tt.interval, tt.job); err == nil {
				t.Error("expected error")
			}
			if s.IsScheduled("bad") {
				t.Error("invalid job must not be registered")
			}
		})
	}
}

func TestSchedule_ReplaceBeforeStart(t *testing.T) {
	s := New(zap.NewNop())
	noop := func(context.Context) error { return nil }

	if err := s.Schedule("auto-learn", time.Hour, noop); err != nil {
		t.Fatal(err)
	}
	if err := s.Schedule("auto-learn", 2*time.Hour, noop); err != nil {
		t.Fatalf("rescheduling should replace, got %v", err)
	}
	if !s.IsScheduled("auto-learn") {
		t.Error("expected job to remain scheduled")
	}
	if err := s.Unschedule("auto-learn"); err != nil {
		t.Fatal(err)
	}
	if s.IsScheduled("auto-learn") {
		t.Error("expected job removed")
	}
}
