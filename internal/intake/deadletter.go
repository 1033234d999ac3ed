package intake

import (
	"context"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
)

// DeadLetter is a parked intake message.
type DeadLetter struct {
	Message    booking.BookingMessage
	Reason     string
	RecordedAt time.Time
}

// MemoryDeadLetters is the in-process DeadLetterSink used with the dispatcher.
type MemoryDeadLetters struct {
	mu      sync.Mutex
	letters []DeadLetter
	limit   int
	now     func() time.Time
}

// NewMemoryDeadLetters keeps at most limit letters, evicting the oldest.
// A non-positive limit keeps everything.
func NewMemoryDeadLetters(limit int, now func() time.Time) *MemoryDeadLetters {
	if now == nil {
		now = time.Now
	}
	return &MemoryDeadLetters{limit: limit, now: now}
}

// DeadLetter implements DeadLetterSink.
func (sink *MemoryDeadLetters) DeadLetter(_ context.Context, message booking.BookingMessage, reason string) error {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.letters = append(sink.letters, DeadLetter{Message: message, Reason: reason, RecordedAt: sink.now().UTC()})
	if sink.limit > 0 && len(sink.letters) > sink.limit {
		sink.letters = sink.letters[len(sink.letters)-sink.limit:]
	}
	return nil
}

// Letters returns a copy of the parked messages, oldest first.
func (sink *MemoryDeadLetters) Letters() []DeadLetter {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	letters := make([]DeadLetter, len(sink.letters))
	copy(letters, sink.letters)
	return letters
}
