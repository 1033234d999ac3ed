package booking

import (
	"encoding/json"
	"fmt"
)

// BookingRequest is the request body carried by an intake message.
type BookingRequest struct {
	UserID     string `json:"userId"`
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Quantity   int    `json:"quantity"`
}

// BookingMessage is the wire form of an intake message, keyed by category id.
type BookingMessage struct {
	Request        BookingRequest `json:"request"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Attempt        int            `json:"attempt,omitempty"`
}

// BookingCommand is a validated booking request.
type BookingCommand struct {
	UserID         UserID
	EventID        EventID
	CategoryID     CategoryID
	Quantity       Quantity
	IdempotencyKey IdempotencyKey
}

// NewBookingCommand validates every field of a booking request.
func NewBookingCommand(idempotencyKey string, userID string, eventID string, categoryID string, quantity int) (BookingCommand, error) {
	key, err := NewIdempotencyKey(idempotencyKey)
	if err != nil {
		return BookingCommand{}, err
	}
	user, err := NewUserID(userID)
	if err != nil {
		return BookingCommand{}, err
	}
	event, err := NewEventID(eventID)
	if err != nil {
		return BookingCommand{}, err
	}
	category, err := NewCategoryID(categoryID)
	if err != nil {
		return BookingCommand{}, err
	}
	count, err := NewQuantity(quantity)
	if err != nil {
		return BookingCommand{}, err
	}
	return BookingCommand{
		UserID:         user,
		EventID:        event,
		CategoryID:     category,
		Quantity:       count,
		IdempotencyKey: key,
	}, nil
}

// Message returns the wire form of the command.
func (command BookingCommand) Message() BookingMessage {
	return BookingMessage{
		Request: BookingRequest{
			UserID:     command.UserID.String(),
			EventID:    command.EventID.String(),
			CategoryID: command.CategoryID.String(),
			Quantity:   command.Quantity.Int(),
		},
		IdempotencyKey: command.IdempotencyKey.String(),
	}
}

// Command validates the message.
func (message BookingMessage) Command() (BookingCommand, error) {
	return NewBookingCommand(
		message.IdempotencyKey,
		message.Request.UserID,
		message.Request.EventID,
		message.Request.CategoryID,
		message.Request.Quantity,
	)
}

// PartitionKey returns the key that orders intake processing.
func (message BookingMessage) PartitionKey() string {
	return message.Request.CategoryID
}

// DecodeBookingMessage parses a JSON intake payload.
func DecodeBookingMessage(payload []byte) (BookingMessage, error) {
	var message BookingMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return BookingMessage{}, fmt.Errorf("%w: malformed booking message: %v", ErrValidation, err)
	}
	return message, nil
}

// Encode renders the message as JSON.
func (message BookingMessage) Encode() ([]byte, error) {
	return json.Marshal(message)
}
