package booking

import (
	"fmt"
	"strings"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "PENDING"
	ReservationStatusConfirmed ReservationStatus = "CONFIRMED"
	ReservationStatusPaid      ReservationStatus = "PAID"
	ReservationStatusDelivered ReservationStatus = "DELIVERED"
	ReservationStatusCancelled ReservationStatus = "CANCELLED"
)

var allowedTransitions = map[ReservationStatus][]ReservationStatus{
	ReservationStatusPending:   {ReservationStatusConfirmed, ReservationStatusPaid, ReservationStatusCancelled},
	ReservationStatusConfirmed: {ReservationStatusPaid, ReservationStatusCancelled},
	ReservationStatusPaid:      {ReservationStatusDelivered, ReservationStatusCancelled},
	ReservationStatusDelivered: nil,
	ReservationStatusCancelled: nil,
}

// ParseReservationStatus validates a stored status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	status := ReservationStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, known := allowedTransitions[status]; !known {
		return "", fmt.Errorf("%w: %q", ErrInvalidReservationStatus, raw)
	}
	return status, nil
}

// String returns the stored representation.
func (status ReservationStatus) String() string {
	return string(status)
}

// IsTerminal reports whether no further transition is possible.
func (status ReservationStatus) IsTerminal() bool {
	return len(allowedTransitions[status]) == 0
}

// CanTransitionTo reports whether moving to next is a legal lifecycle step.
func (status ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range allowedTransitions[status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CanRefund reports whether partial refunds are accepted in this state.
func (status ReservationStatus) CanRefund() bool {
	return status == ReservationStatusPaid || status == ReservationStatusDelivered
}

func checkTransition(from ReservationStatus, to ReservationStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
	}
	return nil
}
