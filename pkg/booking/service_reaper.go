package booking

import (
	"context"
	"errors"
	"time"
)

// ReapReport summarizes one expiry sweep.
type ReapReport struct {
	Scanned   int
	Cancelled int
	Skipped   int
	Failed    int
}

// ReapExpired cancels PENDING reservations whose hold has lapsed. Each
// reservation is released in its own transaction through a conditional
// PENDING -> CANCELLED write; a reservation confirmed or paid in the meantime
// is skipped untouched. A failure on one reservation does not stop the sweep.
func (service *Service) ReapExpired(ctx context.Context) (ReapReport, error) {
	now := service.now()
	expired, err := service.store.ListExpiredReservations(ctx, now, service.reaperBatchSize)
	if err != nil {
		service.logOperation(ctx, OperationLog{Operation: operationReapExpired, Error: err})
		return ReapReport{}, err
	}
	report := ReapReport{Scanned: len(expired)}
	for _, candidate := range expired {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		cancelled, err := service.reapReservation(ctx, candidate, now)
		switch {
		case err != nil:
			report.Failed++
		case cancelled:
			report.Cancelled++
		default:
			report.Skipped++
		}
	}
	return report, nil
}

func (service *Service) reapReservation(ctx context.Context, candidate Reservation, now time.Time) (bool, error) {
	cancelled := false
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		err := transactionStore.UpdateReservationStatus(ctx, candidate.ID, ReservationStatusPending, ReservationStatusCancelled, now)
		if errors.Is(err, ErrConcurrentUpdate) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := service.releaseReservation(ctx, transactionStore, candidate, now); err != nil {
			return err
		}
		cancelled = true
		return nil
	})
	entry := OperationLog{
		Operation:      operationReapExpired,
		ReservationID:  candidate.ID,
		CategoryID:     candidate.CategoryID,
		EventID:        candidate.EventID,
		UserID:         candidate.UserID,
		IdempotencyKey: candidate.IdempotencyKey,
		Quantity:       candidate.Quantity,
		Amount:         candidate.TotalAmount,
		FromStatus:     ReservationStatusPending,
		ToStatus:       ReservationStatusCancelled,
		Error:          operationError,
	}
	if operationError == nil && !cancelled {
		entry.Status = operationStatusSkipped
	}
	service.logOperation(ctx, entry)
	if operationError != nil {
		return false, operationError
	}
	return cancelled, nil
}
