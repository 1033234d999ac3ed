package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

func TestTopologyNames(test *testing.T) {
	test.Parallel()
	if QueueName(3) != "booking.requests.3" || RoutingKey(3) != "3" {
		test.Fatalf("unexpected names: %s %s", QueueName(3), RoutingKey(3))
	}
	if DeadLetterQueue != "booking.requests.dead" || ExchangeName != "booking.requests" {
		test.Fatalf("unexpected topology constants")
	}
}

func TestNewAMQPConsumerValidates(test *testing.T) {
	test.Parallel()
	processor, err := NewProcessor(newStockBooker(map[string]int{}), ProcessorConfig{}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	if _, err := NewAMQPConsumer("", 0, processor, nil); !errors.Is(err, ErrInvalidDispatcherConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
	if _, err := NewAMQPConsumer("", 1, nil, nil); !errors.Is(err, ErrInvalidDispatcherConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
	consumer, err := NewAMQPConsumer("", 2, processor, zap.NewNop())
	if err != nil || consumer.url != defaultBrokerURL {
		test.Fatalf("expected default url, got %+v %v", consumer, err)
	}
	if _, err := NewAMQPPublisher("", 0, nil); !errors.Is(err, ErrInvalidDispatcherConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
}

func TestSettleDecidesAcknowledgement(test *testing.T) {
	test.Parallel()
	booker := newStockBooker(map[string]int{"category-1": 1})
	failing := &recordingPublisher{err: errors.New("broker down")}
	processor, err := NewProcessor(booker, ProcessorConfig{Policy: DropRetry, Retry: failing, DeadLetters: NewMemoryDeadLetters(0, nil)}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	consumer, err := NewAMQPConsumer("amqp://broker", 1, processor, nil)
	if err != nil {
		test.Fatalf("consumer: %v", err)
	}
	reserved, err := mustMessage(test, "key-1", "category-1", 1).Encode()
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	soldOut, err := mustMessage(test, "key-2", "category-1", 1).Encode()
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	ctx := context.Background()
	if action := consumer.settle(ctx, 0, []byte("{not json")); action != deliveryReject {
		test.Fatalf("expected reject for malformed body, got %d", action)
	}
	if action := consumer.settle(ctx, 0, reserved); action != deliveryAck {
		test.Fatalf("expected ack for reservation, got %d", action)
	}
	if action := consumer.settle(ctx, 0, soldOut); action != deliveryRequeue {
		test.Fatalf("expected requeue when the retry publish fails, got %d", action)
	}
}

func TestSettleRequeuesWhenConsumeContextIsCancelled(test *testing.T) {
	test.Parallel()
	booker := contextBooker{stockBooker: newStockBooker(map[string]int{"category-1": 1})}
	processor, err := NewProcessor(booker, ProcessorConfig{}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	consumer, err := NewAMQPConsumer("amqp://broker", 1, processor, nil)
	if err != nil {
		test.Fatalf("consumer: %v", err)
	}
	body, err := mustMessage(test, "key-1", "category-1", 1).Encode()
	if err != nil {
		test.Fatalf("encode: %v", err)
	}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if action := consumer.settle(cancelled, 0, body); action != deliveryRequeue {
		test.Fatalf("expected requeue for an interrupted attempt, got %d", action)
	}
	if action := consumer.settle(context.Background(), 0, body); action != deliveryAck {
		test.Fatalf("expected the redelivery to reserve and ack, got %d", action)
	}
	if booker.reserved() != 1 {
		test.Fatalf("expected one reservation, got %d", booker.reserved())
	}
}

func TestRunStopsWhenContextCancelledDuringBackoff(test *testing.T) {
	test.Parallel()
	processor, err := NewProcessor(newStockBooker(map[string]int{}), ProcessorConfig{}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	consumer, err := NewAMQPConsumer("amqp://unreachable", 1, processor, nil)
	if err != nil {
		test.Fatalf("consumer: %v", err)
	}
	dials := make(chan struct{}, 4)
	consumer.dial = func(string) (*amqp.Connection, error) {
		dials <- struct{}{}
		return nil, errors.New("connection refused")
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()
	select {
	case <-dials:
	case <-time.After(2 * time.Second):
		test.Fatalf("consumer never dialed")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			test.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		test.Fatalf("consumer did not stop")
	}
}

func TestNextBackoffIsCapped(test *testing.T) {
	test.Parallel()
	if nextBackoff(time.Second) != 2*time.Second || nextBackoff(20*time.Second) != maxBackoff {
		test.Fatalf("unexpected backoff progression")
	}
}

func TestPublisherRedialsWithBackoffWhileBrokerIsDown(test *testing.T) {
	test.Parallel()
	var (
		mu    sync.Mutex
		dials int
		now   = fixedNow()
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(duration time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(duration)
	}
	dial := func(string) (*amqp.Connection, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		return nil, errors.New("connection refused")
	}
	dialCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return dials
	}
	publisher, err := newAMQPPublisher("amqp://broker", 2, dial, clock, nil)
	if err != nil {
		test.Fatalf("publisher: %v", err)
	}
	ctx := context.Background()
	message := mustMessage(test, "key-1", "category-1", 1)

	if err := publisher.Publish(ctx, message); !errors.Is(err, booking.ErrDownstreamUnavailable) {
		test.Fatalf("expected unavailable, got %v", err)
	}
	if err := publisher.Publish(ctx, message); !errors.Is(err, ErrBrokerUnavailable) || dialCount() != 1 {
		test.Fatalf("expected backoff without a new dial, got %v after %d dials", err, dialCount())
	}
	advance(initialBackoff)
	if err := publisher.DeadLetter(ctx, message, "failed"); err == nil || dialCount() != 2 {
		test.Fatalf("expected a redial after the backoff, got %v after %d dials", err, dialCount())
	}
	advance(initialBackoff)
	if err := publisher.Ping(ctx); !errors.Is(err, ErrBrokerUnavailable) || dialCount() != 2 {
		test.Fatalf("expected the backoff to double, got %v after %d dials", err, dialCount())
	}
	advance(initialBackoff)
	if err := publisher.Ping(ctx); err == nil || dialCount() != 3 {
		test.Fatalf("expected a third dial, got %v after %d dials", err, dialCount())
	}

	if err := publisher.Close(); err != nil {
		test.Fatalf("close: %v", err)
	}
	advance(maxBackoff)
	if err := publisher.Publish(ctx, message); !errors.Is(err, ErrPublisherClosed) || dialCount() != 3 {
		test.Fatalf("expected closed publisher, got %v after %d dials", err, dialCount())
	}
}
