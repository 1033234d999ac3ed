package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolationCode   = "23505"
	errorOperationStore     = "store"
	errorSubjectVenue       = "venue"
	errorSubjectEvent       = "event"
	errorSubjectCategory    = "category"
	errorSubjectStock       = "stock"
	errorSubjectReservation = "reservation"
	errorSubjectEntry       = "entry"
	errorSubjectPayment     = "payment"
	errorSubjectTransaction = "transaction"
	errorCodeBegin          = "begin"
	errorCodeCommit         = "commit"
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

	sqlInsertVenue = `
		insert into venues(id, name, address, capacity, created_at)
		values ($1, $2, $3, $4, now())
	`

	sqlInsertEvent = `
		insert into events(id, venue_id, name, artist, event_date, status, created_at)
		values ($1, $2, $3, $4, $5, $6, now())
	`

	sqlInsertCategory = `
		insert into ticket_categories(id, event_id, name, base_price, total_allocation, available_stock, version, created_at, updated_at)
		values ($1, $2, $3, $4::numeric, $5, $6, $7, now(), now())
	`

	sqlSelectVenue = `
		select id, name, address, capacity from venues where id = $1
	`

	sqlSelectEvent = `
		select id, venue_id, name, artist, event_date, status from events where id = $1
	`

	sqlListEvents = `
		select id, venue_id, name, artist, event_date, status from events
		order by event_date asc, id asc
	`

	sqlCategoryColumns = `
		select id, event_id, name, base_price::text, total_allocation, available_stock, version
		from ticket_categories
	`

	sqlSelectCategory = sqlCategoryColumns + ` where id = $1`

	sqlListCategories = sqlCategoryColumns + ` order by name asc, id asc`

	sqlListCategoriesByEvent = sqlCategoryColumns + ` where event_id = $1 order by name asc, id asc`

	sqlCompareAndSwapPrice = `
		update ticket_categories
		set base_price = $3::numeric, version = version + 1, updated_at = now()
		where id = $1 and version = $2
	`

	sqlTryDecrementStock = `
		update ticket_categories
		set available_stock = available_stock - $2, updated_at = now()
		where id = $1 and available_stock >= $2
	`

	sqlIncrementStock = `
		update ticket_categories
		set available_stock = available_stock + $2, updated_at = now()
		where id = $1
	`

	sqlReservationExists = `
		select exists(select 1 from reservations where idempotency_key = $1)
	`

	sqlInsertReservation = `
		insert into reservations(
			id, user_id, category_id, event_id, quantity, total_amount, status,
			idempotency_key, request, expires_at, created_at, updated_at
		)
		values ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9::jsonb, $10, $11, $12)
	`

	sqlReservationColumns = `
		select id, user_id, category_id, event_id, quantity, total_amount::text, status,
			idempotency_key, expires_at, created_at, updated_at
		from reservations
	`

	sqlSelectReservation = sqlReservationColumns + ` where id = $1 for update`

	sqlSelectReservationByKey = sqlReservationColumns + ` where idempotency_key = $1`

	sqlListReservationsByUser = sqlReservationColumns + ` where user_id = $1 order by created_at desc, id asc`

	sqlListExpiredReservations = sqlReservationColumns + `
		where status = 'PENDING' and expires_at < $1
		order by expires_at asc, id asc
		limit $2
	`

	sqlUpdateReservationStatus = `
		update reservations
		set status = $3, updated_at = $4
		where id = $1 and status = $2
	`

	sqlCountReservations = `
		select count(*) from reservations
	`

	sqlInsertLedgerEntry = `
		insert into ledger_entries(id, reservation_id, concert_id, amount, type, recorded_at)
		values ($1, $2, $3, $4::numeric, $5, $6)
	`

	sqlLedgerColumns = `
		select id, reservation_id, concert_id, amount::text, type, recorded_at
		from ledger_entries
	`

	sqlListEntriesByConcert = sqlLedgerColumns + ` where concert_id = $1 order by recorded_at asc, id asc`

	sqlListEntriesByReservation = sqlLedgerColumns + ` where reservation_id = $1 order by recorded_at asc, id asc`

	sqlListEntries = sqlLedgerColumns + ` order by recorded_at desc, id desc limit $1`

	sqlInsertPayment = `
		insert into payments(id, reservation_id, amount, currency, method, gateway_transaction_id, paid_at)
		values ($1, $2, $3::numeric, $4, $5, $6, $7)
	`

	sqlSelectPayment = `
		select id, reservation_id, amount::text, currency, method, coalesce(gateway_transaction_id, ''), paid_at
		from payments where reservation_id = $1
	`
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row
}

// Store implements booking.Store using a pgx connection pool (autocommit).
type Store struct {
	queries
	pool *pgxpool.Pool
}

// TxStore implements booking.Store for an active transaction.
type TxStore struct {
	queries
}

type queries struct {
	db querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{db: pool}, pool: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeBegin, booking.Unavailable(err))
	}
	transactionStore := &TxStore{queries: queries{db: tx}}
	if err := fn(ctx, transactionStore); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, booking.Unavailable(err))
	}
	return nil
}

// Ping checks database connectivity.
func (store *Store) Ping(ctx context.Context) error {
	if err := store.pool.Ping(ctx); err != nil {
		return booking.Unavailable(err)
	}
	return nil
}

func (store *TxStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	return fn(ctx, store)
}

func (q queries) CreateVenue(ctx context.Context, venue booking.Venue) error {
	_, err := q.db.Exec(ctx, sqlInsertVenue, venue.ID.String(), venue.Name, venue.Address, venue.Capacity)
	if err != nil {
		return wrapStoreError(errorSubjectVenue, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (q queries) CreateEvent(ctx context.Context, event booking.Event) error {
	_, err := q.db.Exec(ctx, sqlInsertEvent,
		event.ID.String(),
		event.VenueID.String(),
		event.Name,
		event.Artist,
		event.EventDate.UTC(),
		event.Status,
	)
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (q queries) CreateCategory(ctx context.Context, category booking.TicketCategory) error {
	_, err := q.db.Exec(ctx, sqlInsertCategory,
		category.ID.String(),
		category.EventID.String(),
		category.Name,
		category.BasePrice.String(),
		category.TotalAllocation,
		category.AvailableStock,
		category.Version,
	)
	if err != nil {
		return wrapStoreError(errorSubjectCategory, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (q queries) GetVenue(ctx context.Context, venueID booking.VenueID) (booking.Venue, error) {
	var (
		idValue  string
		name     string
		address  string
		capacity int
	)
	err := q.db.QueryRow(ctx, sqlSelectVenue, venueID.String()).Scan(&idValue, &name, &address, &capacity)
	if err != nil {
		return booking.Venue{}, wrapLookupError(errorSubjectVenue, venueID.String(), err)
	}
	parsedID, err := booking.NewVenueID(idValue)
	if err != nil {
		return booking.Venue{}, wrapStoreError(errorSubjectVenue, errorCodeInvalid, err)
	}
	return booking.Venue{ID: parsedID, Name: name, Address: address, Capacity: capacity}, nil
}

func (q queries) GetEvent(ctx context.Context, eventID booking.EventID) (booking.Event, error) {
	event, err := scanEvent(q.db.QueryRow(ctx, sqlSelectEvent, eventID.String()))
	if err != nil {
		return booking.Event{}, wrapLookupError(errorSubjectEvent, eventID.String(), err)
	}
	return event, nil
}

func (q queries) ListEvents(ctx context.Context) ([]booking.Event, error) {
	rows, err := q.db.Query(ctx, sqlListEvents)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, booking.Unavailable(err))
	}
	defer rows.Close()
	var events []booking.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, booking.Unavailable(err))
	}
	return events, nil
}

func (q queries) GetCategory(ctx context.Context, categoryID booking.CategoryID) (booking.TicketCategory, error) {
	category, err := scanCategory(q.db.QueryRow(ctx, sqlSelectCategory, categoryID.String()))
	if err != nil {
		return booking.TicketCategory{}, wrapLookupError(errorSubjectCategory, categoryID.String(), err)
	}
	return category, nil
}

func (q queries) ListCategories(ctx context.Context) ([]booking.TicketCategory, error) {
	return q.listCategories(ctx, sqlListCategories)
}

func (q queries) ListCategoriesByEvent(ctx context.Context, eventID booking.EventID) ([]booking.TicketCategory, error) {
	return q.listCategories(ctx, sqlListCategoriesByEvent, eventID.String())
}

func (q queries) listCategories(ctx context.Context, sql string, arguments ...any) ([]booking.TicketCategory, error) {
	rows, err := q.db.Query(ctx, sql, arguments...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectCategory, errorCodeList, booking.Unavailable(err))
	}
	defer rows.Close()
	var categories []booking.TicketCategory
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCategory, errorCodeInvalid, err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectCategory, errorCodeList, booking.Unavailable(err))
	}
	return categories, nil
}

func (q queries) CompareAndSwapCategoryPrice(ctx context.Context, categoryID booking.CategoryID, expectedVersion int64, price decimal.Decimal) (bool, error) {
	tag, err := q.db.Exec(ctx, sqlCompareAndSwapPrice, categoryID.String(), expectedVersion, price.String())
	if err != nil {
		return false, wrapStoreError(errorSubjectCategory, errorCodeCompareAndSwap, booking.Unavailable(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (q queries) TryDecrementStock(ctx context.Context, categoryID booking.CategoryID, quantity booking.Quantity) (bool, error) {
	tag, err := q.db.Exec(ctx, sqlTryDecrementStock, categoryID.String(), quantity.Int())
	if err != nil {
		return false, wrapStoreError(errorSubjectStock, errorCodeDecrement, booking.Unavailable(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (q queries) IncrementStock(ctx context.Context, categoryID booking.CategoryID, quantity booking.Quantity) error {
	tag, err := q.db.Exec(ctx, sqlIncrementStock, categoryID.String(), quantity.Int())
	if err != nil {
		return wrapStoreError(errorSubjectStock, errorCodeIncrement, booking.Unavailable(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectStock, errorCodeIncrement, fmt.Errorf("%w: category %s", booking.ErrNotFound, categoryID))
	}
	return nil
}

func (q queries) ReservationExistsByIdempotencyKey(ctx context.Context, key booking.IdempotencyKey) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx, sqlReservationExists, key.String()).Scan(&exists); err != nil {
		return false, wrapStoreError(errorSubjectReservation, errorCodeExists, booking.Unavailable(err))
	}
	return exists, nil
}

func (q queries) CreateReservation(ctx context.Context, reservation booking.Reservation) error {
	request, err := json.Marshal(map[string]any{
		"userId":     reservation.UserID.String(),
		"eventId":    reservation.EventID.String(),
		"categoryId": reservation.CategoryID.String(),
		"quantity":   reservation.Quantity.Int(),
	})
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	_, err = q.db.Exec(ctx, sqlInsertReservation,
		reservation.ID.String(),
		reservation.UserID.String(),
		reservation.CategoryID.String(),
		reservation.EventID.String(),
		reservation.Quantity.Int(),
		reservation.TotalAmount.String(),
		reservation.Status.String(),
		reservation.IdempotencyKey.String(),
		string(request),
		reservation.ExpiresAt.UTC(),
		reservation.CreatedAt.UTC(),
		reservation.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, booking.ErrDuplicateRequest)
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (q queries) GetReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error) {
	reservation, err := scanReservation(q.db.QueryRow(ctx, sqlSelectReservation, reservationID.String()))
	if err != nil {
		return booking.Reservation{}, wrapLookupError(errorSubjectReservation, reservationID.String(), err)
	}
	return reservation, nil
}

func (q queries) GetReservationByIdempotencyKey(ctx context.Context, key booking.IdempotencyKey) (booking.Reservation, error) {
	reservation, err := scanReservation(q.db.QueryRow(ctx, sqlSelectReservationByKey, key.String()))
	if err != nil {
		return booking.Reservation{}, wrapLookupError(errorSubjectReservation, key.String(), err)
	}
	return reservation, nil
}

func (q queries) ListReservationsByUser(ctx context.Context, userID booking.UserID) ([]booking.Reservation, error) {
	return q.listReservations(ctx, sqlListReservationsByUser, userID.String())
}

func (q queries) ListExpiredReservations(ctx context.Context, before time.Time, limit int) ([]booking.Reservation, error) {
	return q.listReservations(ctx, sqlListExpiredReservations, before.UTC(), limit)
}

func (q queries) listReservations(ctx context.Context, sql string, arguments ...any) ([]booking.Reservation, error) {
	rows, err := q.db.Query(ctx, sql, arguments...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, booking.Unavailable(err))
	}
	defer rows.Close()
	var reservations []booking.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, booking.Unavailable(err))
	}
	return reservations, nil
}

func (q queries) UpdateReservationStatus(ctx context.Context, reservationID booking.ReservationID, from booking.ReservationStatus, to booking.ReservationStatus, at time.Time) error {
	tag, err := q.db.Exec(ctx, sqlUpdateReservationStatus, reservationID.String(), from.String(), to.String(), at.UTC())
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, booking.Unavailable(err))
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdateStatus, booking.ErrConcurrentUpdate)
	}
	return nil
}

func (q queries) CountReservations(ctx context.Context) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, sqlCountReservations).Scan(&count); err != nil {
		return 0, wrapStoreError(errorSubjectReservation, errorCodeCount, booking.Unavailable(err))
	}
	return count, nil
}

func (q queries) AppendLedgerEntry(ctx context.Context, entry booking.LedgerEntry) error {
	recordedAt := entry.RecordedAt.UTC()
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err := q.db.Exec(ctx, sqlInsertLedgerEntry,
		entry.ID.String(),
		entry.ReservationID.String(),
		entry.ConcertID.String(),
		entry.Amount.String(),
		entry.Type.String(),
		recordedAt,
	)
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, booking.Unavailable(err))
	}
	return nil
}

func (q queries) ListLedgerEntriesByConcert(ctx context.Context, concertID booking.EventID) ([]booking.LedgerEntry, error) {
	return q.listEntries(ctx, sqlListEntriesByConcert, concertID.String())
}

func (q queries) ListLedgerEntriesByReservation(ctx context.Context, reservationID booking.ReservationID) ([]booking.LedgerEntry, error) {
	return q.listEntries(ctx, sqlListEntriesByReservation, reservationID.String())
}

func (q queries) ListLedgerEntries(ctx context.Context, limit int) ([]booking.LedgerEntry, error) {
	return q.listEntries(ctx, sqlListEntries, limit)
}

func (q queries) listEntries(ctx context.Context, sql string, arguments ...any) ([]booking.LedgerEntry, error) {
	rows, err := q.db.Query(ctx, sql, arguments...)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, booking.Unavailable(err))
	}
	defer rows.Close()
	var entries []booking.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, booking.Unavailable(err))
	}
	return entries, nil
}

func (q queries) CreatePayment(ctx context.Context, payment booking.Payment) error {
	_, err := q.db.Exec(ctx, sqlInsertPayment,
		payment.ID.String(),
		payment.ReservationID.String(),
		payment.Amount.String(),
		payment.Currency,
		payment.Method,
		payment.GatewayTransactionID,
		payment.PaidAt.UTC(),
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectPayment, errorCodeDuplicate, booking.ErrConcurrentUpdate)
	}
	if err != nil {
		return wrapStoreError(errorSubjectPayment, errorCodeCreate, booking.Unavailable(err))
	}
	return nil
}

func (q queries) GetPaymentByReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Payment, error) {
	var (
		idValue     string
		reservation string
		amountText  string
		payment     booking.Payment
	)
	err := q.db.QueryRow(ctx, sqlSelectPayment, reservationID.String()).Scan(
		&idValue,
		&reservation,
		&amountText,
		&payment.Currency,
		&payment.Method,
		&payment.GatewayTransactionID,
		&payment.PaidAt,
	)
	if err != nil {
		return booking.Payment{}, wrapLookupError(errorSubjectPayment, reservationID.String(), err)
	}
	if payment.ID, err = booking.NewPaymentID(idValue); err != nil {
		return booking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	if payment.ReservationID, err = booking.NewReservationID(reservation); err != nil {
		return booking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	if payment.Amount, err = decimal.NewFromString(amountText); err != nil {
		return booking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	payment.PaidAt = payment.PaidAt.UTC()
	return payment, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func wrapLookupError(subject string, key string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return wrapStoreError(subject, errorCodeGet, fmt.Errorf("%w: %s %s", booking.ErrNotFound, subject, key))
	}
	if errors.Is(err, booking.ErrValidation) {
		return wrapStoreError(subject, errorCodeInvalid, err)
	}
	return wrapStoreError(subject, errorCodeGet, booking.Unavailable(err))
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
