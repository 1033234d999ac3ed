package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Venue mirrors the venues table.
type Venue struct {
	ID        string    `gorm:"size:64;primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Address   string    `gorm:"size:512;not null"`
	Capacity  int       `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Venue) TableName() string { return "venues" }

func (venue *Venue) BeforeCreate(tx *gorm.DB) error {
	if venue.ID == "" {
		venue.ID = uuid.NewString()
	}
	return nil
}

// Event mirrors the events table.
type Event struct {
	ID        string    `gorm:"size:64;primaryKey"`
	VenueID   string    `gorm:"size:64;not null;index:idx_events_venue"`
	Name      string    `gorm:"size:255;not null"`
	Artist    string    `gorm:"size:255;not null"`
	EventDate time.Time `gorm:"not null;index:idx_events_date"`
	Status    string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Event) TableName() string { return "events" }

func (event *Event) BeforeCreate(tx *gorm.DB) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return nil
}

// TicketCategory mirrors the ticket_categories table. AvailableStock carries
// the conditional decrement; Version carries compare-and-swap repricing.
type TicketCategory struct {
	ID              string          `gorm:"size:64;primaryKey"`
	EventID         string          `gorm:"size:64;not null;index:idx_categories_event"`
	Name            string          `gorm:"size:255;not null"`
	BasePrice       decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	TotalAllocation int             `gorm:"not null"`
	AvailableStock  int             `gorm:"not null"`
	Version         int64           `gorm:"not null;default:0"`
	CreatedAt       time.Time       `gorm:"not null"`
	UpdatedAt       time.Time       `gorm:"not null"`
}

func (TicketCategory) TableName() string { return "ticket_categories" }

func (category *TicketCategory) BeforeCreate(tx *gorm.DB) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	return nil
}

// Reservation mirrors the reservations table.
type Reservation struct {
	ID             string          `gorm:"size:64;primaryKey"`
	UserID         string          `gorm:"size:128;not null;index:idx_reservations_user"`
	CategoryID     string          `gorm:"size:64;not null;index:idx_reservations_category"`
	EventID        string          `gorm:"size:64;not null;index:idx_reservations_event"`
	Quantity       int             `gorm:"not null"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Status         string          `gorm:"size:16;not null;index:idx_reservations_status_expiry,priority:1"`
	IdempotencyKey string          `gorm:"size:255;not null;uniqueIndex:uniq_reservations_idempotency_key"`
	Request        datatypes.JSON  `gorm:"not null"`
	ExpiresAt      time.Time       `gorm:"not null;index:idx_reservations_status_expiry,priority:2"`
	CreatedAt      time.Time       `gorm:"not null"`
	UpdatedAt      time.Time       `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

// LedgerEntry mirrors the append-only ledger_entries table.
type LedgerEntry struct {
	ID            string          `gorm:"size:64;primaryKey"`
	ReservationID string          `gorm:"size:64;not null;index:idx_ledger_reservation"`
	ConcertID     string          `gorm:"size:64;not null;index:idx_ledger_concert_recorded,priority:1"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Type          string          `gorm:"size:8;not null"`
	RecordedAt    time.Time       `gorm:"not null;index:idx_ledger_concert_recorded,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return nil
}

// Payment mirrors the payments table.
type Payment struct {
	ID                   string          `gorm:"size:64;primaryKey"`
	ReservationID        string          `gorm:"size:64;not null;uniqueIndex:uniq_payments_reservation"`
	Amount               decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Currency             string          `gorm:"size:3;not null"`
	Method               string          `gorm:"size:64;not null"`
	GatewayTransactionID string          `gorm:"size:255"`
	PaidAt               time.Time       `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

// Models lists every table for schema migration.
func Models() []any {
	return []any{&Venue{}, &Event{}, &TicketCategory{}, &Reservation{}, &LedgerEntry{}, &Payment{}}
}

// requestSnapshot is the intake request stored alongside a reservation.
type requestSnapshot struct {
	UserID     string `json:"userId"`
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Quantity   int    `json:"quantity"`
}
