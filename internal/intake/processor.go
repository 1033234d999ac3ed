// Package intake carries booking requests from submitters to the booking
// service: validation and acceptance on the way in, category-partitioned
// ordered delivery in between, and the drop policy for attempts that do not
// end in a reservation.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"go.uber.org/zap"
)

// DefaultMaxAttempts is the delivery budget of the retry drop policy.
const DefaultMaxAttempts = 3

var (
	// ErrInvalidProcessorConfig reports a drop policy without the sinks it needs.
	ErrInvalidProcessorConfig = errors.New("intake: invalid processor config")
	// ErrInterrupted reports an attempt cut short by its context. The message
	// was not settled and must be delivered again.
	ErrInterrupted = errors.New("intake: attempt interrupted")
)

// DropPolicy decides what happens to intake attempts that produced no reservation.
type DropPolicy string

const (
	DropDiscard    DropPolicy = "discard"
	DropDeadLetter DropPolicy = "dead_letter"
	DropRetry      DropPolicy = "retry"
)

// ParseDropPolicy validates a configured policy name. Empty means discard.
func ParseDropPolicy(raw string) (DropPolicy, error) {
	switch DropPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DropDiscard:
		return DropDiscard, nil
	case DropDeadLetter:
		return DropDeadLetter, nil
	case DropRetry:
		return DropRetry, nil
	default:
		return "", fmt.Errorf("%w: unknown drop policy %q", ErrInvalidProcessorConfig, raw)
	}
}

// Outcome is the final result of one intake attempt.
type Outcome string

const (
	OutcomeReserved          Outcome = "reserved"
	OutcomeDuplicate         Outcome = "duplicate"
	OutcomeInsufficientStock Outcome = "insufficient_stock"
	OutcomeRejected          Outcome = "rejected"
	OutcomeFailed            Outcome = "failed"
	// OutcomeInterrupted is never dropped: the message goes back to the stream.
	OutcomeInterrupted Outcome = "interrupted"
)

// Dropped reports whether the attempt ended without a reservation for a
// request that was not already served.
func (outcome Outcome) Dropped() bool {
	switch outcome {
	case OutcomeInsufficientStock, OutcomeRejected, OutcomeFailed:
		return true
	default:
		return false
	}
}

// Classify maps a ProcessBooking error to its outcome.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeReserved
	case errors.Is(err, booking.ErrDuplicateRequest):
		return OutcomeDuplicate
	case errors.Is(err, booking.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, booking.ErrValidation), errors.Is(err, booking.ErrNotFound):
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}

// Booker is the booking service surface used by intake.
type Booker interface {
	ProcessBooking(ctx context.Context, command booking.BookingCommand) (booking.Reservation, error)
}

// Handler consumes one intake message. A returned error means the message
// was not settled and should be redelivered.
type Handler interface {
	Handle(ctx context.Context, message booking.BookingMessage) (Outcome, error)
}

// Publisher enqueues an intake message on its category partition.
type Publisher interface {
	Publish(ctx context.Context, message booking.BookingMessage) error
}

// DeadLetterSink parks dropped messages for inspection.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, message booking.BookingMessage, reason string) error
}

// ProcessorConfig selects the drop policy and its sinks.
type ProcessorConfig struct {
	Policy      DropPolicy
	MaxAttempts int
	Retry       Publisher
	DeadLetters DeadLetterSink
}

// Processor runs ProcessBooking for each message and applies the drop policy.
type Processor struct {
	booker      Booker
	policy      DropPolicy
	maxAttempts int
	retry       Publisher
	deadLetters DeadLetterSink
	logger      *zap.Logger
}

// NewProcessor validates the policy wiring.
func NewProcessor(booker Booker, config ProcessorConfig, logger *zap.Logger) (*Processor, error) {
	if booker == nil {
		return nil, fmt.Errorf("%w: booker is nil", ErrInvalidProcessorConfig)
	}
	policy := config.Policy
	if policy == "" {
		policy = DropDiscard
	}
	if _, err := ParseDropPolicy(string(policy)); err != nil {
		return nil, err
	}
	if (policy == DropDeadLetter || policy == DropRetry) && config.DeadLetters == nil {
		return nil, fmt.Errorf("%w: %s policy needs a dead letter sink", ErrInvalidProcessorConfig, policy)
	}
	if policy == DropRetry && config.Retry == nil {
		return nil, fmt.Errorf("%w: retry policy needs a publisher", ErrInvalidProcessorConfig)
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		booker:      booker,
		policy:      policy,
		maxAttempts: maxAttempts,
		retry:       config.Retry,
		deadLetters: config.DeadLetters,
		logger:      logger.Named("intake"),
	}, nil
}

// Handle implements Handler.
func (processor *Processor) Handle(ctx context.Context, message booking.BookingMessage) (Outcome, error) {
	var processErr error
	command, err := message.Command()
	if err != nil {
		processErr = err
	} else {
		_, processErr = processor.booker.ProcessBooking(ctx, command)
	}
	if processErr != nil && interrupted(ctx, processErr) {
		processor.logger.Info("booking attempt interrupted",
			zap.String("idempotency_key", message.IdempotencyKey),
			zap.String("category_id", message.PartitionKey()),
			zap.Error(processErr),
		)
		return OutcomeInterrupted, fmt.Errorf("%w: %v", ErrInterrupted, processErr)
	}
	outcome := Classify(processErr)
	fields := []zap.Field{
		zap.String("idempotency_key", message.IdempotencyKey),
		zap.String("category_id", message.PartitionKey()),
		zap.Int("attempt", message.Attempt),
		zap.String("outcome", string(outcome)),
	}
	if outcome == OutcomeFailed {
		processor.logger.Warn("booking attempt failed", append(fields, zap.Error(processErr))...)
	} else {
		processor.logger.Debug("booking attempt settled", fields...)
	}
	if !outcome.Dropped() {
		return outcome, nil
	}
	if err := processor.drop(ctx, message, outcome); err != nil {
		processor.logger.Error("drop policy failed", append(fields, zap.Error(err))...)
		return outcome, err
	}
	return outcome, nil
}

func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (processor *Processor) drop(ctx context.Context, message booking.BookingMessage, outcome Outcome) error {
	switch processor.policy {
	case DropDeadLetter:
		return processor.deadLetters.DeadLetter(ctx, message, string(outcome))
	case DropRetry:
		if outcome != OutcomeRejected && message.Attempt+1 < processor.maxAttempts {
			next := message
			next.Attempt = message.Attempt + 1
			return processor.retry.Publish(ctx, next)
		}
		return processor.deadLetters.DeadLetter(ctx, message, string(outcome))
	default:
		return nil
	}
}
