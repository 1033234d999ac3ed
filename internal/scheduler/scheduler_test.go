package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestNewPeriodicTaskValidates(test *testing.T) {
	test.Parallel()
	job := func(context.Context) error { return nil }
	testCases := []struct {
		name     string
		taskName string
		interval time.Duration
		job      Job
	}{
		{name: "missing name", taskName: "", interval: time.Second, job: job},
		{name: "zero interval", taskName: "reaper", interval: 0, job: job},
		{name: "nil job", taskName: "reaper", interval: time.Second, job: nil},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if _, err := NewPeriodicTask(testCase.taskName, testCase.interval, testCase.job, nil); !errors.Is(err, ErrInvalidTask) {
				test.Fatalf("expected ErrInvalidTask, got %v", err)
			}
		})
	}
}

func TestPeriodicTaskRunsUntilStopped(test *testing.T) {
	test.Parallel()
	var runs atomic.Int64
	reached := make(chan struct{})
	task, err := NewPeriodicTask("reaper", 5*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 3 {
			close(reached)
		}
		return nil
	}, zap.NewNop())
	if err != nil {
		test.Fatalf("new task: %v", err)
	}
	if err := task.Start(context.Background()); err != nil {
		test.Fatalf("start: %v", err)
	}
	if err := task.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		test.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		test.Fatalf("task did not run three times")
	}
	task.Stop()
	stoppedAt := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != stoppedAt {
		test.Fatalf("task kept running after stop: %d -> %d", stoppedAt, runs.Load())
	}
	task.Stop()
}

func TestPeriodicTaskSurvivesJobErrors(test *testing.T) {
	test.Parallel()
	var runs atomic.Int64
	reached := make(chan struct{})
	task, err := NewPeriodicTask("reconcile", 5*time.Millisecond, func(context.Context) error {
		if runs.Add(1) == 2 {
			close(reached)
		}
		return errors.New("redis down")
	}, nil)
	if err != nil {
		test.Fatalf("new task: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := task.Start(ctx); err != nil {
		test.Fatalf("start: %v", err)
	}
	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		test.Fatalf("task stopped after a failing run")
	}
	cancel()
	task.Stop()
}

func TestRunOnceReturnsJobError(test *testing.T) {
	test.Parallel()
	failure := errors.New("boom")
	task, err := NewPeriodicTask("reaper", time.Minute, func(context.Context) error { return failure }, nil)
	if err != nil {
		test.Fatalf("new task: %v", err)
	}
	if err := task.RunOnce(context.Background()); !errors.Is(err, failure) {
		test.Fatalf("expected job error, got %v", err)
	}
}
