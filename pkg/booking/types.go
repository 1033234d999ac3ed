package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VenueID identifies a venue.
type VenueID struct {
	value string
}

// EventID identifies a concert. Ledger entries refer to it as the concert id.
type EventID struct {
	value string
}

// CategoryID identifies a ticket category and is the intake partition key.
type CategoryID struct {
	value string
}

// ReservationID identifies a reservation.
type ReservationID struct {
	value string
}

// UserID identifies the buyer.
type UserID struct {
	value string
}

// IdempotencyKey is the client-supplied deduplication token.
type IdempotencyKey struct {
	value string
}

// EntryID identifies a ledger entry.
type EntryID struct {
	value string
}

// PaymentID identifies a payment record.
type PaymentID struct {
	value string
}

// Quantity is a strictly positive ticket count.
type Quantity int

func normalizeIdentifier(raw string, sentinel error) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", sentinel)
	}
	return trimmed, nil
}

// NewVenueID validates and normalizes a venue id.
func NewVenueID(raw string) (VenueID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidVenueID)
	if err != nil {
		return VenueID{}, err
	}
	return VenueID{value: value}, nil
}

// String returns the normalized identifier.
func (id VenueID) String() string {
	return id.value
}

// NewEventID validates and normalizes an event id.
func NewEventID(raw string) (EventID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidEventID)
	if err != nil {
		return EventID{}, err
	}
	return EventID{value: value}, nil
}

// String returns the normalized identifier.
func (id EventID) String() string {
	return id.value
}

// NewCategoryID validates and normalizes a category id.
func NewCategoryID(raw string) (CategoryID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidCategoryID)
	if err != nil {
		return CategoryID{}, err
	}
	return CategoryID{value: value}, nil
}

// String returns the normalized identifier.
func (id CategoryID) String() string {
	return id.value
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidReservationID)
	if err != nil {
		return ReservationID{}, err
	}
	return ReservationID{value: value}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidUserID)
	if err != nil {
		return UserID{}, err
	}
	return UserID{value: value}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// NewIdempotencyKey validates and normalizes an idempotency key.
func NewIdempotencyKey(raw string) (IdempotencyKey, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidIdempotencyKey)
	if err != nil {
		return IdempotencyKey{}, err
	}
	return IdempotencyKey{value: value}, nil
}

// String returns the normalized key.
func (key IdempotencyKey) String() string {
	return key.value
}

// NewEntryID validates and normalizes a ledger entry id.
func NewEntryID(raw string) (EntryID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidEntryID)
	if err != nil {
		return EntryID{}, err
	}
	return EntryID{value: value}, nil
}

// String returns the normalized identifier.
func (id EntryID) String() string {
	return id.value
}

// NewPaymentID validates and normalizes a payment id.
func NewPaymentID(raw string) (PaymentID, error) {
	value, err := normalizeIdentifier(raw, ErrInvalidPaymentID)
	if err != nil {
		return PaymentID{}, err
	}
	return PaymentID{value: value}, nil
}

// String returns the normalized identifier.
func (id PaymentID) String() string {
	return id.value
}

// NewQuantity validates a ticket count.
func NewQuantity(raw int) (Quantity, error) {
	if raw <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidQuantity)
	}
	return Quantity(raw), nil
}

// Int returns the raw count.
func (quantity Quantity) Int() int {
	return int(quantity)
}

// NewAmount validates a strictly positive money amount with at most
// AmountScale fractional digits, the precision the stores persist.
func NewAmount(raw decimal.Decimal) (decimal.Decimal, error) {
	if !raw.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	if !raw.Equal(raw.Truncate(AmountScale)) {
		return decimal.Zero, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, AmountScale)
	}
	return raw, nil
}

// ParseAmount parses a decimal string into a strictly positive amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return NewAmount(parsed)
}

// EntryType enumerates ledger entry kinds.
type EntryType string

const (
	EntryDebit  EntryType = "DEBIT"
	EntryCredit EntryType = "CREDIT"
)

// ParseEntryType validates a stored entry type.
func ParseEntryType(raw string) (EntryType, error) {
	switch EntryType(strings.ToUpper(strings.TrimSpace(raw))) {
	case EntryDebit:
		return EntryDebit, nil
	case EntryCredit:
		return EntryCredit, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidEntryType, raw)
	}
}

// String returns the stored representation.
func (entryType EntryType) String() string {
	return string(entryType)
}

// Venue hosts events.
type Venue struct {
	ID       VenueID
	Name     string
	Address  string
	Capacity int
}

// Event is a single concert at a venue.
type Event struct {
	ID        EventID
	VenueID   VenueID
	Name      string
	Artist    string
	EventDate time.Time
	Status    string
}

// TicketCategory is a priced tier of tickets with its own stock.
// AvailableStock only moves through StockLedger; Version only moves through
// CompareAndSwapCategoryPrice.
type TicketCategory struct {
	ID              CategoryID
	EventID         EventID
	Name            string
	BasePrice       decimal.Decimal
	TotalAllocation int
	AvailableStock  int
	Version         int64
}

// Reservation is a user's claim on a quantity of one category.
type Reservation struct {
	ID             ReservationID
	UserID         UserID
	CategoryID     CategoryID
	EventID        EventID
	Quantity       Quantity
	TotalAmount    decimal.Decimal
	Status         ReservationStatus
	IdempotencyKey IdempotencyKey
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LedgerEntry is one immutable DEBIT or CREDIT line.
type LedgerEntry struct {
	ID            EntryID
	ReservationID ReservationID
	ConcertID     EventID
	Amount        decimal.Decimal
	Type          EntryType
	RecordedAt    time.Time
}

// Payment records the settlement of a reservation.
type Payment struct {
	ID                   PaymentID
	ReservationID        ReservationID
	Amount               decimal.Decimal
	Currency             string
	Method               string
	GatewayTransactionID string
	PaidAt               time.Time
}

// PaymentDetails carries the caller-supplied part of a payment.
type PaymentDetails struct {
	currency             string
	method               string
	gatewayTransactionID string
}

// NewPaymentDetails validates payment metadata. Currency defaults to KRW.
func NewPaymentDetails(currency string, method string, gatewayTransactionID string) (PaymentDetails, error) {
	normalizedCurrency := strings.ToUpper(strings.TrimSpace(currency))
	if normalizedCurrency == "" {
		normalizedCurrency = defaultCurrency
	}
	if len(normalizedCurrency) != 3 {
		return PaymentDetails{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrInvalidPaymentDetails)
	}
	normalizedMethod := strings.TrimSpace(method)
	if normalizedMethod == "" {
		return PaymentDetails{}, fmt.Errorf("%w: payment method is required", ErrInvalidPaymentDetails)
	}
	return PaymentDetails{
		currency:             normalizedCurrency,
		method:               normalizedMethod,
		gatewayTransactionID: strings.TrimSpace(gatewayTransactionID),
	}, nil
}

// Currency returns the ISO currency code.
func (details PaymentDetails) Currency() string {
	return details.currency
}

// Method returns the payment method label.
func (details PaymentDetails) Method() string {
	return details.method
}

// GatewayTransactionID returns the external gateway reference, possibly empty.
func (details PaymentDetails) GatewayTransactionID() string {
	return details.gatewayTransactionID
}
