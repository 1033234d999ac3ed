package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dialectSQLite           = "sqlite"
	pgUniqueViolationCode   = "23505"
	sqliteConstraintCode    = 19
	mysqlDuplicateEntryCode = 1062
	errorOperationStore     = "store"
	errorSubjectVenue       = "venue"
	errorSubjectEvent       = "event"
	errorSubjectCategory    = "category"
	errorSubjectStock       = "stock"
	errorSubjectReservation = "reservation"
	errorSubjectEntry       = "entry"
	errorSubjectPayment     = "payment"
	errorCodeCreate         = "create"
	errorCodeCount          = "count"
	errorCodeDecrement      = "decrement"
	errorCodeDuplicate      = "duplicate"
	errorCodeExists         = "exists"
	errorCodeGet            = "get"
	errorCodeIncrement      = "increment"
	errorCodeInsert         = "insert"
	errorCodeInvalid        = "invalid"
	errorCodeList           = "list"
	errorCodeCompareAndSwap = "compare_and_swap"
	errorCodeUpdateStatus   = "update_status"
)

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// Ping checks database connectivity.
func (store *Store) Ping(ctx context.Context) error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return booking.Unavailable(err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return booking.Unavailable(err)
	}
	return nil
}

func (store *Store) CreateVenue(ctx context.Context, venue booking.Venue) error {
	model := Venue{
		ID:       venue.ID.String(),
		Name:     venue.Name,
		Address:  venue.Address,
		Capacity: venue.Capacity,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectVenue, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (store *Store) CreateEvent(ctx context.Context, event booking.Event) error {
	model := Event{
		ID:        event.ID.String(),
		VenueID:   event.VenueID.String(),
		Name:      event.Name,
		Artist:    event.Artist,
		EventDate: event.EventDate.UTC(),
		Status:    event.Status,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (store *Store) CreateCategory(ctx context.Context, category booking.TicketCategory) error {
	model := TicketCategory{
		ID:              category.ID.String(),
		EventID:         category.EventID.String(),
		Name:            category.Name,
		BasePrice:       category.BasePrice,
		TotalAllocation: category.TotalAllocation,
		AvailableStock:  category.AvailableStock,
		Version:         category.Version,
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectCategory, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (store *Store) GetVenue(ctx context.Context, venueID booking.VenueID) (booking.Venue, error) {
	var model Venue
	err := store.db.WithContext(ctx).Where("id = ?", venueID.String()).Take(&model).Error
	if err != nil {
		return booking.Venue{}, wrapLookupError(errorSubjectVenue, venueID.String(), err)
	}
	return mapVenue(model)
}

func (store *Store) GetEvent(ctx context.Context, eventID booking.EventID) (booking.Event, error) {
	var model Event
	err := store.db.WithContext(ctx).Where("id = ?", eventID.String()).Take(&model).Error
	if err != nil {
		return booking.Event{}, wrapLookupError(errorSubjectEvent, eventID.String(), err)
	}
	return mapEvent(model)
}

func (store *Store) ListEvents(ctx context.Context) ([]booking.Event, error) {
	var rows []Event
	if err := store.db.WithContext(ctx).Order("event_date ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, booking.Unavailable(err))
	}
	events := make([]booking.Event, 0, len(rows))
	for _, row := range rows {
		event, err := mapEvent(row)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (store *Store) GetCategory(ctx context.Context, categoryID booking.CategoryID) (booking.TicketCategory, error) {
	var model TicketCategory
	err := store.db.WithContext(ctx).Where("id = ?", categoryID.String()).Take(&model).Error
	if err != nil {
		return booking.TicketCategory{}, wrapLookupError(errorSubjectCategory, categoryID.String(), err)
	}
	return mapCategory(model)
}

func (store *Store) ListCategories(ctx context.Context) ([]booking.TicketCategory, error) {
	return store.listCategories(ctx, store.db.WithContext(ctx))
}

func (store *Store) ListCategoriesByEvent(ctx context.Context, eventID booking.EventID) ([]booking.TicketCategory, error) {
	return store.listCategories(ctx, store.db.WithContext(ctx).Where("event_id = ?", eventID.String()))
}

func (store *Store) listCategories(_ context.Context, query *gorm.DB) ([]booking.TicketCategory, error) {
	var rows []TicketCategory
	if err := query.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCategory, errorCodeList, booking.Unavailable(err))
	}
	categories := make([]booking.TicketCategory, 0, len(rows))
	for _, row := range rows {
		category, err := mapCategory(row)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, nil
}

func (store *Store) CompareAndSwapCategoryPrice(ctx context.Context, categoryID booking.CategoryID, expectedVersion int64, price decimal.Decimal) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&TicketCategory{}).
		Where("id = ? AND version = ?", categoryID.String(), expectedVersion).
		Updates(map[string]any{
			"base_price": price,
			"version":    gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectCategory, errorCodeCompareAndSwap, booking.Unavailable(result.Error))
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) TryDecrementStock(ctx context.Context, categoryID booking.CategoryID, quantity booking.Quantity) (bool, error) {
	result := store.db.WithContext(ctx).
		Model(&TicketCategory{}).
		Where("id = ? AND available_stock >= ?", categoryID.String(), quantity.Int()).
		Update("available_stock", gorm.Expr("available_stock - ?", quantity.Int()))
	if result.Error != nil {
		return false, wrapStoreError(errorSubjectStock, errorCodeDecrement, booking.Unavailable(result.Error))
	}
	return result.RowsAffected == 1, nil
}

func (store *Store) IncrementStock(ctx context.Context, categoryID booking.CategoryID, quantity booking.Quantity) error {
	result := store.db.WithContext(ctx).
		Model(&TicketCategory{}).
		Where("id = ?", categoryID.String()).
		Update("available_stock", gorm.Expr("available_stock + ?", quantity.Int()))
	if result.Error != nil {
		return wrapStoreError(errorSubjectStock, errorCodeIncrement, booking.Unavailable(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectStock, errorCodeIncrement, fmt.Errorf("%w: category %s", booking.ErrNotFound, categoryID))
	}
	return nil
}

func (store *Store) ReservationExistsByIdempotencyKey(ctx context.Context, key booking.IdempotencyKey) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("idempotency_key = ?", key.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectReservation, errorCodeExists, booking.Unavailable(err))
	}
	return count > 0, nil
}

func (store *Store) CreateReservation(ctx context.Context, reservation booking.Reservation) error {
	request, err := json.Marshal(requestSnapshot{
		UserID:     reservation.UserID.String(),
		EventID:    reservation.EventID.String(),
		CategoryID: reservation.CategoryID.String(),
		Quantity:   reservation.Quantity.Int(),
	})
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	model := Reservation{
		ID:             reservation.ID.String(),
		UserID:         reservation.UserID.String(),
		CategoryID:     reservation.CategoryID.String(),
		EventID:        reservation.EventID.String(),
		Quantity:       reservation.Quantity.Int(),
		TotalAmount:    reservation.TotalAmount,
		Status:         reservation.Status.String(),
		IdempotencyKey: reservation.IdempotencyKey.String(),
		Request:        datatypes.JSON(request),
		ExpiresAt:      reservation.ExpiresAt.UTC(),
		CreatedAt:      reservation.CreatedAt.UTC(),
		UpdatedAt:      reservation.UpdatedAt.UTC(),
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, booking.ErrDuplicateRequest)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (store *Store) GetReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error) {
	var model Reservation
	err := store.forUpdate(store.db.WithContext(ctx)).
		Where("id = ?", reservationID.String()).
		Take(&model).Error
	if err != nil {
		return booking.Reservation{}, wrapLookupError(errorSubjectReservation, reservationID.String(), err)
	}
	return mapReservation(model)
}

func (store *Store) GetReservationByIdempotencyKey(ctx context.Context, key booking.IdempotencyKey) (booking.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).
		Where("idempotency_key = ?", key.String()).
		Take(&model).Error
	if err != nil {
		return booking.Reservation{}, wrapLookupError(errorSubjectReservation, key.String(), err)
	}
	return mapReservation(model)
}

func (store *Store) ListReservationsByUser(ctx context.Context, userID booking.UserID) ([]booking.Reservation, error) {
	return store.listReservations(store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at DESC, id ASC"))
}

func (store *Store) ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]booking.Reservation, error) {
	return store.listReservations(store.db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", booking.ReservationStatusPending.String(), before.UTC()).
		Order("expires_at ASC, id ASC").
		Limit(limit))
}

func (store *Store) listReservations(query *gorm.DB) ([]booking.Reservation, error) {
	var rows []Reservation
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, booking.Unavailable(err))
	}
	reservations := make([]booking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func (store *Store) UpdateReservationStatus(ctx context.Context, reservationID booking.ReservationID, from booking.ReservationStatus, to booking.ReservationStatus, at time.Time) error {
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("id = ? AND status = ?", reservationID.String(), from.String()).
		Updates(map[string]any{
			"status":     to.String(),
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, booking.Unavailable(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, booking.ErrConcurrentUpdate)
	}
	return nil
}

func (store *Store) CountReservations(ctx context.Context) (int64, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&Reservation{}).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeCount, booking.Unavailable(err))
	}
	return count, nil
}

func (store *Store) AppendLedgerEntry(ctx context.Context, entry booking.LedgerEntry) error {
	model := LedgerEntry{
		ID:            entry.ID.String(),
		ReservationID: entry.ReservationID.String(),
		ConcertID:     entry.ConcertID.String(),
		Amount:        entry.Amount,
		Type:          entry.Type.String(),
		RecordedAt:    entry.RecordedAt.UTC(),
	}
	if model.RecordedAt.IsZero() {
		model.RecordedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, booking.Unavailable(err))
	}
	return nil
}

func (store *Store) ListLedgerEntriesByConcert(ctx context.Context, concertID booking.EventID) ([]booking.LedgerEntry, error) {
	return store.listEntries(store.db.WithContext(ctx).
		Where("concert_id = ?", concertID.String()).
		Order("recorded_at ASC, id ASC"))
}

func (store *Store) ListLedgerEntriesByReservation(ctx context.Context, reservationID booking.ReservationID) ([]booking.LedgerEntry, error) {
	return store.listEntries(store.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID.String()).
		Order("recorded_at ASC, id ASC"))
}

func (store *Store) ListLedgerEntries(ctx context.Context, limit int) ([]booking.LedgerEntry, error) {
	return store.listEntries(store.db.WithContext(ctx).
		Order("recorded_at DESC, id DESC").
		Limit(limit))
}

func (store *Store) listEntries(query *gorm.DB) ([]booking.LedgerEntry, error) {
	var rows []LedgerEntry
	if err := query.Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, booking.Unavailable(err))
	}
	entries := make([]booking.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) CreatePayment(ctx context.Context, payment booking.Payment) error {
	model := Payment{
		ID:                   payment.ID.String(),
		ReservationID:        payment.ReservationID.String(),
		Amount:               payment.Amount,
		Currency:             payment.Currency,
		Method:               payment.Method,
		GatewayTransactionID: payment.GatewayTransactionID,
		PaidAt:               payment.PaidAt.UTC(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, booking.ErrConcurrentUpdate)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (store *Store) GetPaymentByReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Payment, error) {
	var model Payment
	err := store.db.WithContext(ctx).Where("reservation_id = ?", reservationID.String()).Take(&model).Error
	if err != nil {
		return booking.Payment{}, wrapLookupError(errorSubjectPayment, reservationID.String(), err)
	}
	return mapPayment(model)
}

// forUpdate adds a row lock where the dialect supports one.
func (store *Store) forUpdate(query *gorm.DB) *gorm.DB {
	if store.db.Dialector.Name() == dialectSQLite {
		return query
	}
	return query.Clauses(clause.Locking{Strength: "UPDATE"})
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func wrapLookupError(subject string, key string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return wrapStoreError(subject, errorCodeGet, fmt.Errorf("%w: %s %s", booking.ErrNotFound, subject, key))
	}
	return wrapStoreError(subject, errorCodeGet, booking.Unavailable(err))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntryCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
