package intake

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"go.uber.org/zap"
)

func TestClassify(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		err      error
		expected Outcome
		dropped  bool
	}{
		{name: "reserved", err: nil, expected: OutcomeReserved, dropped: false},
		{name: "duplicate", err: fmt.Errorf("wrapped: %w", booking.ErrDuplicateRequest), expected: OutcomeDuplicate, dropped: false},
		{name: "sold out", err: booking.ErrInsufficientStock, expected: OutcomeInsufficientStock, dropped: true},
		{name: "validation", err: booking.ErrInvalidQuantity, expected: OutcomeRejected, dropped: true},
		{name: "unknown category", err: booking.ErrNotFound, expected: OutcomeRejected, dropped: true},
		{name: "mismatch", err: booking.ErrCategoryEventMismatch, expected: OutcomeRejected, dropped: true},
		{name: "store down", err: booking.Unavailable(errors.New("dial tcp")), expected: OutcomeFailed, dropped: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			outcome := Classify(testCase.err)
			if outcome != testCase.expected || outcome.Dropped() != testCase.dropped {
				test.Fatalf("expected %s (dropped=%v), got %s (dropped=%v)", testCase.expected, testCase.dropped, outcome, outcome.Dropped())
			}
		})
	}
}

func TestParseDropPolicy(test *testing.T) {
	test.Parallel()
	for raw, expected := range map[string]DropPolicy{"": DropDiscard, "discard": DropDiscard, "DEAD_LETTER": DropDeadLetter, " retry ": DropRetry} {
		policy, err := ParseDropPolicy(raw)
		if err != nil || policy != expected {
			test.Fatalf("parse %q: expected %s, got %s (%v)", raw, expected, policy, err)
		}
	}
	if _, err := ParseDropPolicy("forward"); !errors.Is(err, ErrInvalidProcessorConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
}

func TestNewProcessorRequiresSinks(test *testing.T) {
	test.Parallel()
	booker := newStockBooker(map[string]int{})
	testCases := []struct {
		name   string
		booker Booker
		config ProcessorConfig
	}{
		{name: "nil booker", booker: nil, config: ProcessorConfig{}},
		{name: "dead letter without sink", booker: booker, config: ProcessorConfig{Policy: DropDeadLetter}},
		{name: "retry without publisher", booker: booker, config: ProcessorConfig{Policy: DropRetry, DeadLetters: NewMemoryDeadLetters(0, nil)}},
		{name: "unknown policy", booker: booker, config: ProcessorConfig{Policy: DropPolicy("forward")}},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			if _, err := NewProcessor(testCase.booker, testCase.config, nil); !errors.Is(err, ErrInvalidProcessorConfig) {
				test.Fatalf("expected invalid config, got %v", err)
			}
		})
	}
}

func TestProcessorDiscardPolicyDropsSilently(test *testing.T) {
	test.Parallel()
	booker := newStockBooker(map[string]int{"category-1": 1})
	processor, err := NewProcessor(booker, ProcessorConfig{}, zap.NewNop())
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	ctx := context.Background()
	first, err := processor.Handle(ctx, mustMessage(test, "key-1", "category-1", 1))
	if err != nil || first != OutcomeReserved {
		test.Fatalf("expected reserved, got %s %v", first, err)
	}
	second, err := processor.Handle(ctx, mustMessage(test, "key-2", "category-1", 1))
	if err != nil || second != OutcomeInsufficientStock {
		test.Fatalf("expected insufficient stock, got %s %v", second, err)
	}
	again, err := processor.Handle(ctx, mustMessage(test, "key-1", "category-1", 1))
	if err != nil || again != OutcomeDuplicate {
		test.Fatalf("expected duplicate, got %s %v", again, err)
	}
}

func TestProcessorLeavesInterruptedAttemptsUnsettled(test *testing.T) {
	test.Parallel()
	booker := contextBooker{stockBooker: newStockBooker(map[string]int{"category-1": 1})}
	sink := NewMemoryDeadLetters(0, nil)
	processor, err := NewProcessor(booker, ProcessorConfig{Policy: DropDeadLetter, DeadLetters: sink}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	outcome, err := processor.Handle(cancelled, mustMessage(test, "key-1", "category-1", 1))
	if !errors.Is(err, ErrInterrupted) || outcome != OutcomeInterrupted || outcome.Dropped() {
		test.Fatalf("expected interrupted attempt, got %s %v", outcome, err)
	}

	timedOut := newStockBooker(map[string]int{"category-1": 1})
	timedOut.failNext = booking.Unavailable(fmt.Errorf("query: %w", context.DeadlineExceeded))
	processor, err = NewProcessor(timedOut, ProcessorConfig{Policy: DropDeadLetter, DeadLetters: sink}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	if _, err := processor.Handle(context.Background(), mustMessage(test, "key-2", "category-1", 1)); !errors.Is(err, ErrInterrupted) {
		test.Fatalf("expected deadline to interrupt, got %v", err)
	}
	if len(sink.Letters()) != 0 {
		test.Fatalf("interrupted attempts must not be dead-lettered, got %+v", sink.Letters())
	}
	if booker.remaining("category-1") != 1 {
		test.Fatalf("expected stock untouched")
	}
}

func TestProcessorRejectsMalformedMessage(test *testing.T) {
	test.Parallel()
	booker := newStockBooker(map[string]int{"category-1": 1})
	sink := NewMemoryDeadLetters(0, fixedNow)
	processor, err := NewProcessor(booker, ProcessorConfig{Policy: DropDeadLetter, DeadLetters: sink}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	message := mustMessage(test, "key-1", "category-1", 1)
	message.Request.Quantity = 0
	outcome, err := processor.Handle(context.Background(), message)
	if err != nil || outcome != OutcomeRejected {
		test.Fatalf("expected rejected, got %s %v", outcome, err)
	}
	if booker.processed != 0 {
		test.Fatalf("invalid message must not reach the booker")
	}
	letters := sink.Letters()
	if len(letters) != 1 || letters[0].Reason != string(OutcomeRejected) || !letters[0].RecordedAt.Equal(fixedNow()) {
		test.Fatalf("unexpected dead letters: %+v", letters)
	}
}

func TestProcessorRetryPolicyRequeuesUntilBudgetSpent(test *testing.T) {
	test.Parallel()
	booker := newStockBooker(map[string]int{"category-1": 0})
	retry := &recordingPublisher{}
	sink := NewMemoryDeadLetters(0, nil)
	processor, err := NewProcessor(booker, ProcessorConfig{Policy: DropRetry, MaxAttempts: 3, Retry: retry, DeadLetters: sink}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	message := mustMessage(test, "key-1", "category-1", 1)
	for attempt := 0; attempt < 3; attempt++ {
		message.Attempt = attempt
		if _, err := processor.Handle(context.Background(), message); err != nil {
			test.Fatalf("attempt %d: %v", attempt, err)
		}
	}
	published := retry.published()
	if len(published) != 2 || published[0].Attempt != 1 || published[1].Attempt != 2 {
		test.Fatalf("expected two requeues with attempts 1 and 2, got %+v", published)
	}
	letters := sink.Letters()
	if len(letters) != 1 || letters[0].Message.Attempt != 2 || letters[0].Reason != string(OutcomeInsufficientStock) {
		test.Fatalf("expected final attempt dead-lettered, got %+v", letters)
	}
}

func TestProcessorRetryPolicyDeadLettersRejections(test *testing.T) {
	test.Parallel()
	booker := newStockBooker(map[string]int{})
	retry := &recordingPublisher{}
	sink := NewMemoryDeadLetters(0, nil)
	processor, err := NewProcessor(booker, ProcessorConfig{Policy: DropRetry, Retry: retry, DeadLetters: sink}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	outcome, err := processor.Handle(context.Background(), mustMessage(test, "key-1", "unknown", 1))
	if err != nil || outcome != OutcomeRejected {
		test.Fatalf("expected rejected, got %s %v", outcome, err)
	}
	if len(retry.published()) != 0 || len(sink.Letters()) != 1 {
		test.Fatalf("rejections must go straight to the dead letter sink")
	}
}

func TestProcessorReportsUnappliedDropPolicy(test *testing.T) {
	test.Parallel()
	booker := newStockBooker(map[string]int{"category-1": 5})
	booker.failNext = booking.Unavailable(errors.New("connection refused"))
	retry := &recordingPublisher{err: errors.New("broker down")}
	processor, err := NewProcessor(booker, ProcessorConfig{Policy: DropRetry, Retry: retry, DeadLetters: NewMemoryDeadLetters(0, nil)}, nil)
	if err != nil {
		test.Fatalf("processor: %v", err)
	}
	outcome, err := processor.Handle(context.Background(), mustMessage(test, "key-1", "category-1", 1))
	if outcome != OutcomeFailed || err == nil {
		test.Fatalf("expected failed outcome with requeue error, got %s %v", outcome, err)
	}
}

func TestMemoryDeadLettersEvictsOldest(test *testing.T) {
	test.Parallel()
	sink := NewMemoryDeadLetters(2, nil)
	for index := 0; index < 3; index++ {
		_ = sink.DeadLetter(context.Background(), mustMessage(test, fmt.Sprintf("key-%d", index), "category-1", 1), "failed")
	}
	letters := sink.Letters()
	if len(letters) != 2 || letters[0].Message.IdempotencyKey != "key-1" || letters[1].Message.IdempotencyKey != "key-2" {
		test.Fatalf("unexpected letters: %+v", letters)
	}
}
