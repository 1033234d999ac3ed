package intake

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"go.uber.org/zap"
)

const (
	// DefaultPartitions is the number of ordered intake streams.
	DefaultPartitions = 8
	// DefaultPartitionBuffer is the per-partition channel capacity.
	DefaultPartitionBuffer = 256
)

var (
	// ErrDispatcherStopped reports a publish after Stop or before Start.
	ErrDispatcherStopped = errors.New("intake: dispatcher is not running")
	// ErrInvalidDispatcherConfig reports a non-positive partition count.
	ErrInvalidDispatcherConfig = errors.New("intake: invalid dispatcher config")
)

// Partition maps a partition key onto one of count streams using FNV-1a.
func Partition(key string, count int) int {
	if count <= 1 {
		return 0
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(key))
	return int(hasher.Sum32() % uint32(count))
}

// Dispatcher is the in-process ordered delivery stream: every message for a
// category lands on the same partition and one goroutine per partition hands
// messages to the Handler in arrival order.
type Dispatcher struct {
	partitions []chan booking.BookingMessage
	logger     *zap.Logger

	mu       sync.RWMutex
	running  bool
	done     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	retries  sync.WaitGroup
}

// NewDispatcher allocates partition channels.
func NewDispatcher(partitionCount int, bufferSize int, logger *zap.Logger) (*Dispatcher, error) {
	if partitionCount <= 0 {
		return nil, fmt.Errorf("%w: partitions must be positive", ErrInvalidDispatcherConfig)
	}
	if bufferSize < 0 {
		return nil, fmt.Errorf("%w: buffer size must not be negative", ErrInvalidDispatcherConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	partitions := make([]chan booking.BookingMessage, partitionCount)
	for index := range partitions {
		partitions[index] = make(chan booking.BookingMessage, bufferSize)
	}
	return &Dispatcher{
		partitions: partitions,
		logger:     logger.Named("dispatcher"),
		done:       make(chan struct{}),
	}, nil
}

// Partitions returns the partition count.
func (dispatcher *Dispatcher) Partitions() int {
	return len(dispatcher.partitions)
}

// Start launches one worker per partition. A Dispatcher can be started once.
// Workers keep ctx's values but outlive its cancellation: they run until Stop
// has drained the buffered messages.
func (dispatcher *Dispatcher) Start(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler is nil", ErrInvalidDispatcherConfig)
	}
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	select {
	case <-dispatcher.done:
		return ErrDispatcherStopped
	default:
	}
	if dispatcher.running {
		return fmt.Errorf("%w: already started", ErrInvalidDispatcherConfig)
	}
	dispatcher.running = true
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	dispatcher.cancel = cancel
	for index, partition := range dispatcher.partitions {
		dispatcher.wg.Add(1)
		go dispatcher.drain(workerCtx, index, partition, handler)
	}
	dispatcher.logger.Info("intake dispatcher started", zap.Int("partitions", len(dispatcher.partitions)))
	return nil
}

// Publish implements Publisher. It blocks while the partition buffer is full.
func (dispatcher *Dispatcher) Publish(ctx context.Context, message booking.BookingMessage) error {
	dispatcher.mu.RLock()
	defer dispatcher.mu.RUnlock()
	if !dispatcher.running {
		return ErrDispatcherStopped
	}
	partition := dispatcher.partitions[Partition(message.PartitionKey(), len(dispatcher.partitions))]
	select {
	case partition <- message:
		return nil
	case <-dispatcher.done:
		return ErrDispatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requeue returns a Publisher for messages re-entering the stream from a
// partition worker. It never blocks the caller on a full partition: when the
// buffer is full the send continues in the background.
func (dispatcher *Dispatcher) Requeue() Publisher {
	return requeuer{dispatcher: dispatcher}
}

type requeuer struct {
	dispatcher *Dispatcher
}

func (requeue requeuer) Publish(ctx context.Context, message booking.BookingMessage) error {
	dispatcher := requeue.dispatcher
	dispatcher.mu.RLock()
	if !dispatcher.running {
		dispatcher.mu.RUnlock()
		return ErrDispatcherStopped
	}
	partition := dispatcher.partitions[Partition(message.PartitionKey(), len(dispatcher.partitions))]
	select {
	case partition <- message:
		dispatcher.mu.RUnlock()
		return nil
	default:
	}
	dispatcher.retries.Add(1)
	dispatcher.mu.RUnlock()
	go func() {
		defer dispatcher.retries.Done()
		if err := dispatcher.Publish(context.WithoutCancel(ctx), message); err != nil {
			dispatcher.logger.Warn("requeue dropped",
				zap.String("idempotency_key", message.IdempotencyKey),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Stop refuses new messages, lets workers drain what is buffered, and waits.
// It is safe to call more than once and from several goroutines.
func (dispatcher *Dispatcher) Stop() {
	dispatcher.stopOnce.Do(dispatcher.stop)
}

func (dispatcher *Dispatcher) stop() {
	close(dispatcher.done)
	dispatcher.mu.Lock()
	wasRunning := dispatcher.running
	dispatcher.running = false
	if wasRunning {
		for _, partition := range dispatcher.partitions {
			close(partition)
		}
	}
	dispatcher.mu.Unlock()
	dispatcher.wg.Wait()
	dispatcher.retries.Wait()
	if dispatcher.cancel != nil {
		dispatcher.cancel()
	}
	if wasRunning {
		dispatcher.logger.Info("intake dispatcher stopped")
	}
}

func (dispatcher *Dispatcher) drain(ctx context.Context, index int, partition <-chan booking.BookingMessage, handler Handler) {
	defer dispatcher.wg.Done()
	for message := range partition {
		if _, err := handler.Handle(ctx, message); err != nil {
			dispatcher.logger.Error("intake message not settled",
				zap.Int("partition", index),
				zap.String("idempotency_key", message.IdempotencyKey),
				zap.Error(err),
			)
		}
	}
}
