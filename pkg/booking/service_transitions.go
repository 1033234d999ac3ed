package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type transitionEffect func(ctx context.Context, transactionStore Store, reservation Reservation, now time.Time) error

// Confirm moves a PENDING reservation to CONFIRMED.
func (service *Service) Confirm(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	return service.transition(ctx, operationConfirm, reservationID, ReservationStatusConfirmed, nil)
}

// RecordPayment stores the payment and moves a PENDING or CONFIRMED reservation
// to PAID. Payments never write to the financial ledger.
func (service *Service) RecordPayment(ctx context.Context, reservationID ReservationID, details PaymentDetails) (Reservation, error) {
	return service.transition(ctx, operationRecordPayment, reservationID, ReservationStatusPaid,
		func(ctx context.Context, transactionStore Store, reservation Reservation, now time.Time) error {
			paymentID, err := NewPaymentID(service.newID())
			if err != nil {
				return err
			}
			return transactionStore.CreatePayment(ctx, Payment{
				ID:                   paymentID,
				ReservationID:        reservation.ID,
				Amount:               reservation.TotalAmount,
				Currency:             details.Currency(),
				Method:               details.Method(),
				GatewayTransactionID: details.GatewayTransactionID(),
				PaidAt:               now,
			})
		})
}

// Deliver moves a PAID reservation to DELIVERED.
func (service *Service) Deliver(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	return service.transition(ctx, operationDeliver, reservationID, ReservationStatusDelivered, nil)
}

// Cancel moves a non-terminal reservation to CANCELLED, restores its stock
// and credits whatever part of the total has not been refunded yet.
func (service *Service) Cancel(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	return service.transition(ctx, operationCancel, reservationID, ReservationStatusCancelled, service.releaseReservation)
}

// PartialRefund credits part of a PAID or DELIVERED reservation without
// changing its status. Cumulative credits never exceed the original debit.
func (service *Service) PartialRefund(ctx context.Context, reservationID ReservationID, amount decimal.Decimal) (Reservation, error) {
	var refunded Reservation
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		refundAmount, err := NewAmount(amount)
		if err != nil {
			return err
		}
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if !reservation.Status.CanRefund() {
			return fmt.Errorf("%w: refund not allowed in %s", ErrInvalidStateTransition, reservation.Status)
		}
		if refundAmount.GreaterThan(reservation.TotalAmount) {
			return ErrRefundExceedsTotal
		}
		now := service.now()
		// Same-status write takes the row lock before credits are summed.
		if err := transactionStore.UpdateReservationStatus(ctx, reservationID, reservation.Status, reservation.Status, now); err != nil {
			return err
		}
		credited, err := creditedTotal(ctx, transactionStore, reservationID)
		if err != nil {
			return err
		}
		if credited.Add(refundAmount).GreaterThan(reservation.TotalAmount) {
			return fmt.Errorf("%w: %s already credited", ErrRefundExceedsTotal, credited)
		}
		if err := service.appendEntry(ctx, transactionStore, reservation, EntryCredit, refundAmount, now); err != nil {
			return err
		}
		reservation.UpdatedAt = now
		refunded = reservation
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationPartialRefund,
		ReservationID: reservationID,
		CategoryID:    refunded.CategoryID,
		EventID:       refunded.EventID,
		UserID:        refunded.UserID,
		Amount:        amount,
		FromStatus:    refunded.Status,
		ToStatus:      refunded.Status,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return refunded, nil
}

// UpdateBasePrice reprices a category outside the intake path using a bounded
// compare-and-swap loop on the category version.
func (service *Service) UpdateBasePrice(ctx context.Context, categoryID CategoryID, price decimal.Decimal) (TicketCategory, error) {
	updated, operationError := service.swapBasePrice(ctx, categoryID, price)
	service.logOperation(ctx, OperationLog{
		Operation:  operationUpdateBasePrice,
		CategoryID: categoryID,
		EventID:    updated.EventID,
		Amount:     price,
		Error:      operationError,
	})
	if operationError != nil {
		return TicketCategory{}, operationError
	}
	return updated, nil
}

func (service *Service) swapBasePrice(ctx context.Context, categoryID CategoryID, price decimal.Decimal) (TicketCategory, error) {
	validPrice, err := NewAmount(price)
	if err != nil {
		return TicketCategory{}, err
	}
	for attempt := 0; attempt < casMaxAttempts; attempt++ {
		category, err := service.store.GetCategory(ctx, categoryID)
		if err != nil {
			return TicketCategory{}, err
		}
		swapped, err := service.store.CompareAndSwapCategoryPrice(ctx, categoryID, category.Version, validPrice)
		if err != nil {
			return TicketCategory{}, err
		}
		if swapped {
			category.BasePrice = validPrice
			category.Version++
			return category, nil
		}
	}
	return TicketCategory{}, WrapError(errorOperationService, errorSubjectCategory, errorCodeCASExhausted, ErrConcurrentUpdate)
}

func (service *Service) transition(ctx context.Context, operation string, reservationID ReservationID, target ReservationStatus, effect transitionEffect) (Reservation, error) {
	var (
		updated  Reservation
		previous ReservationStatus
	)
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		reservation, err := transactionStore.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		previous = reservation.Status
		if err := checkTransition(reservation.Status, target); err != nil {
			return err
		}
		now := service.now()
		if err := transactionStore.UpdateReservationStatus(ctx, reservationID, reservation.Status, target, now); err != nil {
			return err
		}
		if effect != nil {
			if err := effect(ctx, transactionStore, reservation, now); err != nil {
				return err
			}
		}
		reservation.Status = target
		reservation.UpdatedAt = now
		updated = reservation
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:      operation,
		ReservationID:  reservationID,
		CategoryID:     updated.CategoryID,
		EventID:        updated.EventID,
		UserID:         updated.UserID,
		IdempotencyKey: updated.IdempotencyKey,
		Quantity:       updated.Quantity,
		Amount:         updated.TotalAmount,
		FromStatus:     previous,
		ToStatus:       target,
		Error:          operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return updated, nil
}

// releaseReservation returns stock and writes the offsetting CREDIT for a
// reservation that has just been moved to CANCELLED.
func (service *Service) releaseReservation(ctx context.Context, transactionStore Store, reservation Reservation, now time.Time) error {
	if err := transactionStore.IncrementStock(ctx, reservation.CategoryID, reservation.Quantity); err != nil {
		return err
	}
	credited, err := creditedTotal(ctx, transactionStore, reservation.ID)
	if err != nil {
		return err
	}
	remaining := reservation.TotalAmount.Sub(credited)
	if !remaining.IsPositive() {
		return nil
	}
	return service.appendEntry(ctx, transactionStore, reservation, EntryCredit, remaining, now)
}

func creditedTotal(ctx context.Context, transactionStore Store, reservationID ReservationID) (decimal.Decimal, error) {
	entries, err := transactionStore.ListLedgerEntriesByReservation(ctx, reservationID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, entry := range entries {
		if entry.Type == EntryCredit {
			total = total.Add(entry.Amount)
		}
	}
	return total, nil
}
