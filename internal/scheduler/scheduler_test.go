package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddJob_RejectsInvalidSpec(t *testing.T) {
	s := New(discardLogger())
	if err := s.AddJob(context.Background(), "bad", "not a cron spec", func(context.Context) {}); err == nil {
		t.Error("AddJob() with a malformed cron spec should return an error")
	}
}

func TestAddJob_RunsOnEverySecondSchedule(t *testing.T) {
	s := New(discardLogger())

	var runs int32
	err := s.AddJob(context.Background(), "every-second", "@every 1s", func(ctx context.Context) {
		atomic.AddInt32(&runs, 1)
	})
	if err != nil {
		t.Fatalf("AddJob() error: %v", err)
	}

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&runs) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("scheduled job did not run within the expected window")
}

func TestStop_WaitsForInFlightJobToFinish(t *testing.T) {
	s := New(discardLogger())

	started := make(chan struct{})
	var finished int32
	err := s.AddJob(context.Background(), "slow", "@every 1s", func(ctx context.Context) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
	})
	if err != nil {
		t.Fatalf("AddJob() error: %v", err)
	}

	s.Start()

	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}

	s.Stop()
	if atomic.LoadInt32(&finished) != 1 {
		t.Error("Stop() returned before the in-flight job finished")
	}
}
