package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
)

// AcceptedStatus is the only status a submitter ever receives.
const AcceptedStatus = "ACCEPTED"

// ErrInvalidGatewayConfig reports a gateway without a publisher or clock.
var ErrInvalidGatewayConfig = errors.New("intake: invalid gateway config")

// Acceptance acknowledges that a request was queued. It says nothing about
// whether a reservation will be created.
type Acceptance struct {
	IdempotencyKey string    `json:"idempotencyKey"`
	CategoryID     string    `json:"categoryId"`
	Status         string    `json:"status"`
	AcceptedAt     time.Time `json:"acceptedAt"`
}

// Gateway validates submissions and publishes them to the intake stream.
type Gateway struct {
	publisher Publisher
	now       func() time.Time
}

// NewGateway wires a Gateway.
func NewGateway(publisher Publisher, now func() time.Time) (*Gateway, error) {
	if publisher == nil {
		return nil, fmt.Errorf("%w: publisher is nil", ErrInvalidGatewayConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock is nil", ErrInvalidGatewayConfig)
	}
	return &Gateway{publisher: publisher, now: now}, nil
}

// Submit validates the request and queues it on its category partition.
func (gateway *Gateway) Submit(ctx context.Context, idempotencyKey string, userID string, eventID string, categoryID string, quantity int) (Acceptance, error) {
	command, err := booking.NewBookingCommand(idempotencyKey, userID, eventID, categoryID, quantity)
	if err != nil {
		return Acceptance{}, err
	}
	if err := gateway.publisher.Publish(ctx, command.Message()); err != nil {
		return Acceptance{}, booking.Unavailable(fmt.Errorf("publish booking request: %w", err))
	}
	return Acceptance{
		IdempotencyKey: command.IdempotencyKey.String(),
		CategoryID:     command.CategoryID.String(),
		Status:         AcceptedStatus,
		AcceptedAt:     gateway.now().UTC(),
	}, nil
}
