package intake

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
)

// stockBooker is an in-memory Booker enforcing idempotency and stock.
type stockBooker struct {
	mu        sync.Mutex
	stock     map[string]int
	seen      map[string]bool
	order     map[string][]string
	failNext  error
	processed int
}

func newStockBooker(stock map[string]int) *stockBooker {
	return &stockBooker{stock: stock, seen: map[string]bool{}, order: map[string][]string{}}
}

func (booker *stockBooker) ProcessBooking(_ context.Context, command booking.BookingCommand) (booking.Reservation, error) {
	booker.mu.Lock()
	defer booker.mu.Unlock()
	booker.processed++
	category := command.CategoryID.String()
	booker.order[category] = append(booker.order[category], command.IdempotencyKey.String())
	if booker.failNext != nil {
		err := booker.failNext
		booker.failNext = nil
		return booking.Reservation{}, err
	}
	if booker.seen[command.IdempotencyKey.String()] {
		return booking.Reservation{}, booking.ErrDuplicateRequest
	}
	available, ok := booker.stock[category]
	if !ok {
		return booking.Reservation{}, fmt.Errorf("%w: category %s", booking.ErrNotFound, category)
	}
	if available < command.Quantity.Int() {
		return booking.Reservation{}, booking.ErrInsufficientStock
	}
	booker.stock[category] = available - command.Quantity.Int()
	booker.seen[command.IdempotencyKey.String()] = true
	return booking.Reservation{CategoryID: command.CategoryID, Quantity: command.Quantity, Status: booking.ReservationStatusPending}, nil
}

func (booker *stockBooker) remaining(category string) int {
	booker.mu.Lock()
	defer booker.mu.Unlock()
	return booker.stock[category]
}

func (booker *stockBooker) reserved() int {
	booker.mu.Lock()
	defer booker.mu.Unlock()
	return len(booker.seen)
}

func (booker *stockBooker) arrivals(category string) []string {
	booker.mu.Lock()
	defer booker.mu.Unlock()
	return append([]string(nil), booker.order[category]...)
}

// recordingPublisher captures published messages.
type recordingPublisher struct {
	mu       sync.Mutex
	messages []booking.BookingMessage
	err      error
}

func (publisher *recordingPublisher) Publish(_ context.Context, message booking.BookingMessage) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if publisher.err != nil {
		return publisher.err
	}
	publisher.messages = append(publisher.messages, message)
	return nil
}

func (publisher *recordingPublisher) published() []booking.BookingMessage {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	return append([]booking.BookingMessage(nil), publisher.messages...)
}

func mustMessage(test *testing.T, key string, category string, quantity int) booking.BookingMessage {
	test.Helper()
	command, err := booking.NewBookingCommand(key, "user-1", "event-1", category, quantity)
	if err != nil {
		test.Fatalf("command: %v", err)
	}
	return command.Message()
}

func fixedNow() time.Time {
	return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
}

// contextBooker behaves like a store-backed booker: a cancelled context
// surfaces as an unavailable store. Calls wait for release when it is set.
type contextBooker struct {
	*stockBooker
	release chan struct{}
}

func (booker contextBooker) ProcessBooking(ctx context.Context, command booking.BookingCommand) (booking.Reservation, error) {
	if booker.release != nil {
		<-booker.release
	}
	if err := ctx.Err(); err != nil {
		return booking.Reservation{}, booking.Unavailable(err)
	}
	return booker.stockBooker.ProcessBooking(ctx, command)
}
