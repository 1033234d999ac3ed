package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service contains the booking domain logic over a Store.
type Service struct {
	store           Store
	cache           StockCache
	nowFn           func() time.Time
	newID           func() string
	logger          OperationLogger
	reservationTTL  time.Duration
	cacheTimeout    time.Duration
	reaperBatchSize int
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:           store,
		nowFn:           now,
		newID:           uuid.NewString,
		reservationTTL:  DefaultReservationTTL,
		cacheTimeout:    DefaultCacheTimeout,
		reaperBatchSize: DefaultReaperBatchSize,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// ProcessBooking turns one intake message into a PENDING reservation and its
// DEBIT entry, or rejects it. The dedup check, the conditional stock decrement
// and both inserts share one transaction, so a rejected or failed attempt
// leaves no partial state.
func (service *Service) ProcessBooking(ctx context.Context, command BookingCommand) (Reservation, error) {
	var created Reservation
	operationError := service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
		exists, err := transactionStore.ReservationExistsByIdempotencyKey(ctx, command.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: idempotency key %s already processed", ErrDuplicateRequest, command.IdempotencyKey)
		}
		category, err := transactionStore.GetCategory(ctx, command.CategoryID)
		if err != nil {
			return err
		}
		if category.EventID != command.EventID {
			return ErrCategoryEventMismatch
		}
		reserved, err := transactionStore.TryDecrementStock(ctx, command.CategoryID, command.Quantity)
		if err != nil {
			return err
		}
		if !reserved {
			return fmt.Errorf("%w: category %s cannot cover %d tickets", ErrInsufficientStock, command.CategoryID, command.Quantity)
		}
		now := service.now()
		reservationID, err := NewReservationID(service.newID())
		if err != nil {
			return err
		}
		reservation := Reservation{
			ID:             reservationID,
			UserID:         command.UserID,
			CategoryID:     command.CategoryID,
			EventID:        category.EventID,
			Quantity:       command.Quantity,
			TotalAmount:    category.BasePrice.Mul(decimalFromQuantity(command.Quantity)),
			Status:         ReservationStatusPending,
			IdempotencyKey: command.IdempotencyKey,
			ExpiresAt:      now.Add(service.reservationTTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := transactionStore.CreateReservation(ctx, reservation); err != nil {
			return err
		}
		if err := service.appendEntry(ctx, transactionStore, reservation, EntryDebit, reservation.TotalAmount, now); err != nil {
			return err
		}
		created = reservation
		return nil
	})
	entry := OperationLog{
		Operation:      operationProcessBooking,
		ReservationID:  created.ID,
		CategoryID:     command.CategoryID,
		EventID:        command.EventID,
		UserID:         command.UserID,
		IdempotencyKey: command.IdempotencyKey,
		Quantity:       command.Quantity,
		Amount:         created.TotalAmount,
		ToStatus:       created.Status,
		Error:          operationError,
	}
	if errors.Is(operationError, ErrDuplicateRequest) || errors.Is(operationError, ErrInsufficientStock) {
		entry.Status = operationStatusSkipped
	}
	service.logOperation(ctx, entry)
	if operationError != nil {
		return Reservation{}, operationError
	}
	return created, nil
}

// GetReservation loads a reservation by id.
func (service *Service) GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	return service.store.GetReservation(ctx, reservationID)
}

// GetReservationByIdempotencyKey lets a submitter poll for the outcome of an accepted request.
func (service *Service) GetReservationByIdempotencyKey(ctx context.Context, key IdempotencyKey) (Reservation, error) {
	return service.store.GetReservationByIdempotencyKey(ctx, key)
}

// ListUserReservations returns every reservation held by a user, newest first.
func (service *Service) ListUserReservations(ctx context.Context, userID UserID) ([]Reservation, error) {
	return service.store.ListReservationsByUser(ctx, userID)
}

func (service *Service) appendEntry(ctx context.Context, transactionStore Store, reservation Reservation, entryType EntryType, amount decimal.Decimal, recordedAt time.Time) error {
	validAmount, err := NewAmount(amount)
	if err != nil {
		return err
	}
	entryID, err := NewEntryID(service.newID())
	if err != nil {
		return err
	}
	return transactionStore.AppendLedgerEntry(ctx, LedgerEntry{
		ID:            entryID,
		ReservationID: reservation.ID,
		ConcertID:     reservation.EventID,
		Amount:        validAmount,
		Type:          entryType,
		RecordedAt:    recordedAt,
	})
}

func decimalFromQuantity(quantity Quantity) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity))
}

func (service *Service) now() time.Time {
	return service.nowFn().UTC()
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
