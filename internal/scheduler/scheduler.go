// Package scheduler runs background maintenance jobs on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrInvalidTask reports a task built without a name, job or positive interval.
var ErrInvalidTask = errors.New("scheduler: invalid task")

// ErrAlreadyStarted reports a second Start on the same task.
var ErrAlreadyStarted = errors.New("scheduler: task already started")

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

// PeriodicTask invokes a Job every interval until Stop is called or the
// start context is cancelled. Runs never overlap.
type PeriodicTask struct {
	name     string
	interval time.Duration
	job      Job
	logger   *zap.Logger

	mu       sync.Mutex
	started  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPeriodicTask validates and builds a task. A nil logger is replaced with a no-op logger.
func NewPeriodicTask(name string, interval time.Duration, job Job, logger *zap.Logger) (*PeriodicTask, error) {
	if name == "" || interval <= 0 || job == nil {
		return nil, ErrInvalidTask
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeriodicTask{
		name:     name,
		interval: interval,
		job:      job,
		logger:   logger.With(zap.String("task", name)),
	}, nil
}

// Start launches the loop. The first run happens after one interval.
func (task *PeriodicTask) Start(ctx context.Context) error {
	task.mu.Lock()
	defer task.mu.Unlock()
	if task.started {
		return ErrAlreadyStarted
	}
	task.started = true
	task.stopChan = make(chan struct{})
	task.wg.Add(1)
	go task.loop(ctx, task.stopChan)
	task.logger.Info("periodic task started", zap.Duration("interval", task.interval))
	return nil
}

// Stop signals the loop and waits for an in-flight run to finish.
func (task *PeriodicTask) Stop() {
	task.mu.Lock()
	if !task.started {
		task.mu.Unlock()
		return
	}
	task.started = false
	close(task.stopChan)
	task.mu.Unlock()
	task.wg.Wait()
	task.logger.Info("periodic task stopped")
}

// RunOnce executes the job synchronously.
func (task *PeriodicTask) RunOnce(ctx context.Context) error {
	started := time.Now()
	err := task.job(ctx)
	if err != nil {
		task.logger.Error("periodic task run failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		return err
	}
	task.logger.Debug("periodic task run finished", zap.Duration("elapsed", time.Since(started)))
	return nil
}

func (task *PeriodicTask) loop(ctx context.Context, stopChan <-chan struct{}) {
	defer task.wg.Done()
	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = task.RunOnce(ctx)
		}
	}
}
