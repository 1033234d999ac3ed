package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// CatalogStore resolves events, venues and categories by explicit id.
type CatalogStore interface {
	CreateVenue(ctx context.Context, venue Venue) error
	CreateEvent(ctx context.Context, event Event) error
	CreateCategory(ctx context.Context, category TicketCategory) error
	GetVenue(ctx context.Context, venueID VenueID) (Venue, error)
	GetEvent(ctx context.Context, eventID EventID) (Event, error)
	ListEvents(ctx context.Context) ([]Event, error)
	GetCategory(ctx context.Context, categoryID CategoryID) (TicketCategory, error)
	ListCategories(ctx context.Context) ([]TicketCategory, error)
	ListCategoriesByEvent(ctx context.Context, eventID EventID) ([]TicketCategory, error)
	// CompareAndSwapCategoryPrice sets the base price and bumps the version only
	// when the stored version equals expectedVersion.
	CompareAndSwapCategoryPrice(ctx context.Context, categoryID CategoryID, expectedVersion int64, price decimal.Decimal) (bool, error)
}

// StockLedger is the durable source of truth for available stock.
type StockLedger interface {
	// TryDecrementStock subtracts quantity in a single conditional statement
	// and reports false when not enough stock remains.
	TryDecrementStock(ctx context.Context, categoryID CategoryID, quantity Quantity) (bool, error)
	IncrementStock(ctx context.Context, categoryID CategoryID, quantity Quantity) error
}

// ReservationStore persists reservations keyed by a unique idempotency key.
type ReservationStore interface {
	ReservationExistsByIdempotencyKey(ctx context.Context, key IdempotencyKey) (bool, error)
	// CreateReservation returns ErrDuplicateRequest when the idempotency key is taken.
	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error)
	GetReservationByIdempotencyKey(ctx context.Context, key IdempotencyKey) (Reservation, error)
	ListReservationsByUser(ctx context.Context, userID UserID) ([]Reservation, error)
	ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]Reservation, error)
	// UpdateReservationStatus writes to only when the row is still in from and
	// returns ErrConcurrentUpdate otherwise.
	UpdateReservationStatus(ctx context.Context, reservationID ReservationID, from ReservationStatus, to ReservationStatus, at time.Time) error
	CountReservations(ctx context.Context) (int64, error)
}

// FinancialLedger is the append-only DEBIT/CREDIT log.
type FinancialLedger interface {
	AppendLedgerEntry(ctx context.Context, entry LedgerEntry) error
	ListLedgerEntriesByConcert(ctx context.Context, concertID EventID) ([]LedgerEntry, error)
	ListLedgerEntriesByReservation(ctx context.Context, reservationID ReservationID) ([]LedgerEntry, error)
	ListLedgerEntries(ctx context.Context, limit int) ([]LedgerEntry, error)
}

// PaymentStore records payments against reservations.
type PaymentStore interface {
	CreatePayment(ctx context.Context, payment Payment) error
	GetPaymentByReservation(ctx context.Context, reservationID ReservationID) (Payment, error)
}

// Store is the persistence contract used by Service.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	CatalogStore
	StockLedger
	ReservationStore
	FinancialLedger
	PaymentStore
}

// StockCache is the fast-path read cache of available stock. A miss reports
// found=false with a nil error.
type StockCache interface {
	Get(ctx context.Context, categoryID CategoryID) (int, bool, error)
	Set(ctx context.Context, categoryID CategoryID, availableStock int) error
}
