package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type stubState struct {
	venues       map[VenueID]Venue
	events       map[EventID]Event
	categories   map[CategoryID]TicketCategory
	reservations map[ReservationID]Reservation
	entries      []LedgerEntry
	payments     map[ReservationID]Payment
}

func (state stubState) clone() stubState {
	copied := stubState{
		venues:       make(map[VenueID]Venue, len(state.venues)),
		events:       make(map[EventID]Event, len(state.events)),
		categories:   make(map[CategoryID]TicketCategory, len(state.categories)),
		reservations: make(map[ReservationID]Reservation, len(state.reservations)),
		entries:      append([]LedgerEntry(nil), state.entries...),
		payments:     make(map[ReservationID]Payment, len(state.payments)),
	}
	for key, value := range state.venues {
		copied.venues[key] = value
	}
	for key, value := range state.events {
		copied.events[key] = value
	}
	for key, value := range state.categories {
		copied.categories[key] = value
	}
	for key, value := range state.reservations {
		copied.reservations[key] = value
	}
	for key, value := range state.payments {
		copied.payments[key] = value
	}
	return copied
}

// stubStore is an in-memory Store. Transactions are serialized and rolled
// back by restoring a snapshot.
type stubStore struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	state stubState
	// failures injects an error for the named method.
	failures map[string]error
	// casConflicts makes the next N CompareAndSwapCategoryPrice calls lose.
	casConflicts int
}

func newStubStore(test *testing.T) *stubStore {
	test.Helper()
	return &stubStore{
		state: stubState{
			venues:       map[VenueID]Venue{},
			events:       map[EventID]Event{},
			categories:   map[CategoryID]TicketCategory{},
			reservations: map[ReservationID]Reservation{},
			payments:     map[ReservationID]Payment{},
		},
		failures: map[string]error{},
	}
}

func (store *stubStore) fail(method string) error {
	if err, ok := store.failures[method]; ok {
		return err
	}
	return nil
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if err := store.fail("WithTx"); err != nil {
		return err
	}
	store.txMu.Lock()
	defer store.txMu.Unlock()
	store.mu.Lock()
	snapshot := store.state.clone()
	store.mu.Unlock()
	if err := fn(ctx, store); err != nil {
		store.mu.Lock()
		store.state = snapshot
		store.mu.Unlock()
		return err
	}
	return nil
}

func (store *stubStore) CreateVenue(_ context.Context, venue Venue) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state.venues[venue.ID] = venue
	return nil
}

func (store *stubStore) CreateEvent(_ context.Context, event Event) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state.events[event.ID] = event
	return nil
}

func (store *stubStore) CreateCategory(_ context.Context, category TicketCategory) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state.categories[category.ID] = category
	return nil
}

func (store *stubStore) GetVenue(_ context.Context, venueID VenueID) (Venue, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	venue, ok := store.state.venues[venueID]
	if !ok {
		return Venue{}, fmt.Errorf("%w: venue %s", ErrNotFound, venueID)
	}
	return venue, nil
}

func (store *stubStore) GetEvent(_ context.Context, eventID EventID) (Event, error) {
	if err := store.fail("GetEvent"); err != nil {
		return Event{}, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	event, ok := store.state.events[eventID]
	if !ok {
		return Event{}, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}
	return event, nil
}

func (store *stubStore) ListEvents(_ context.Context) ([]Event, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	events := make([]Event, 0, len(store.state.events))
	for _, event := range store.state.events {
		events = append(events, event)
	}
	sort.Slice(events, func(left, right int) bool { return events[left].ID.String() < events[right].ID.String() })
	return events, nil
}

func (store *stubStore) GetCategory(_ context.Context, categoryID CategoryID) (TicketCategory, error) {
	if err := store.fail("GetCategory"); err != nil {
		return TicketCategory{}, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	category, ok := store.state.categories[categoryID]
	if !ok {
		return TicketCategory{}, fmt.Errorf("%w: category %s", ErrNotFound, categoryID)
	}
	return category, nil
}

func (store *stubStore) ListCategories(_ context.Context) ([]TicketCategory, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	categories := make([]TicketCategory, 0, len(store.state.categories))
	for _, category := range store.state.categories {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(left, right int) bool { return categories[left].ID.String() < categories[right].ID.String() })
	return categories, nil
}

func (store *stubStore) ListCategoriesByEvent(ctx context.Context, eventID EventID) ([]TicketCategory, error) {
	all, err := store.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]TicketCategory, 0, len(all))
	for _, category := range all {
		if category.EventID == eventID {
			filtered = append(filtered, category)
		}
	}
	return filtered, nil
}

func (store *stubStore) CompareAndSwapCategoryPrice(_ context.Context, categoryID CategoryID, expectedVersion int64, price decimal.Decimal) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	category, ok := store.state.categories[categoryID]
	if !ok {
		return false, fmt.Errorf("%w: category %s", ErrNotFound, categoryID)
	}
	if store.casConflicts > 0 {
		store.casConflicts--
		category.Version++
		store.state.categories[categoryID] = category
		return false, nil
	}
	if category.Version != expectedVersion {
		return false, nil
	}
	category.BasePrice = price
	category.Version++
	store.state.categories[categoryID] = category
	return true, nil
}

func (store *stubStore) TryDecrementStock(_ context.Context, categoryID CategoryID, quantity Quantity) (bool, error) {
	if err := store.fail("TryDecrementStock"); err != nil {
		return false, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	category, ok := store.state.categories[categoryID]
	if !ok || category.AvailableStock < quantity.Int() {
		return false, nil
	}
	category.AvailableStock -= quantity.Int()
	store.state.categories[categoryID] = category
	return true, nil
}

func (store *stubStore) IncrementStock(_ context.Context, categoryID CategoryID, quantity Quantity) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	category, ok := store.state.categories[categoryID]
	if !ok {
		return fmt.Errorf("%w: category %s", ErrNotFound, categoryID)
	}
	category.AvailableStock += quantity.Int()
	store.state.categories[categoryID] = category
	return nil
}

func (store *stubStore) ReservationExistsByIdempotencyKey(_ context.Context, key IdempotencyKey) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, reservation := range store.state.reservations {
		if reservation.IdempotencyKey == key {
			return true, nil
		}
	}
	return false, nil
}

func (store *stubStore) CreateReservation(ctx context.Context, reservation Reservation) error {
	if err := store.fail("CreateReservation"); err != nil {
		return err
	}
	exists, _ := store.ReservationExistsByIdempotencyKey(ctx, reservation.IdempotencyKey)
	if exists {
		return ErrDuplicateRequest
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state.reservations[reservation.ID] = reservation
	return nil
}

func (store *stubStore) GetReservation(_ context.Context, reservationID ReservationID) (Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	reservation, ok := store.state.reservations[reservationID]
	if !ok {
		return Reservation{}, fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
	}
	return reservation, nil
}

func (store *stubStore) GetReservationByIdempotencyKey(_ context.Context, key IdempotencyKey) (Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	for _, reservation := range store.state.reservations {
		if reservation.IdempotencyKey == key {
			return reservation, nil
		}
	}
	return Reservation{}, fmt.Errorf("%w: idempotency key %s", ErrNotFound, key)
}

func (store *stubStore) ListReservationsByUser(_ context.Context, userID UserID) ([]Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var reservations []Reservation
	for _, reservation := range store.state.reservations {
		if reservation.UserID == userID {
			reservations = append(reservations, reservation)
		}
	}
	return reservations, nil
}

func (store *stubStore) ListExpiredReservations(_ context.Context, before time.Time, limit int) ([]Reservation, error) {
	if err := store.fail("ListExpiredReservations"); err != nil {
		return nil, err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	var expired []Reservation
	for _, reservation := range store.state.reservations {
		if reservation.Status == ReservationStatusPending && reservation.ExpiresAt.Before(before) {
			expired = append(expired, reservation)
		}
	}
	sort.Slice(expired, func(left, right int) bool { return expired[left].ExpiresAt.Before(expired[right].ExpiresAt) })
	if len(expired) > limit {
		expired = expired[:limit]
	}
	return expired, nil
}

func (store *stubStore) UpdateReservationStatus(_ context.Context, reservationID ReservationID, from ReservationStatus, to ReservationStatus, at time.Time) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	reservation, ok := store.state.reservations[reservationID]
	if !ok || reservation.Status != from {
		return ErrConcurrentUpdate
	}
	reservation.Status = to
	reservation.UpdatedAt = at
	store.state.reservations[reservationID] = reservation
	return nil
}

func (store *stubStore) CountReservations(_ context.Context) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	return int64(len(store.state.reservations)), nil
}

func (store *stubStore) AppendLedgerEntry(_ context.Context, entry LedgerEntry) error {
	if err := store.fail("AppendLedgerEntry"); err != nil {
		return err
	}
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state.entries = append(store.state.entries, entry)
	return nil
}

func (store *stubStore) ListLedgerEntriesByConcert(_ context.Context, concertID EventID) ([]LedgerEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var entries []LedgerEntry
	for _, entry := range store.state.entries {
		if entry.ConcertID == concertID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (store *stubStore) ListLedgerEntriesByReservation(_ context.Context, reservationID ReservationID) ([]LedgerEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	var entries []LedgerEntry
	for _, entry := range store.state.entries {
		if entry.ReservationID == reservationID {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (store *stubStore) ListLedgerEntries(_ context.Context, limit int) ([]LedgerEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	entries := append([]LedgerEntry(nil), store.state.entries...)
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (store *stubStore) CreatePayment(_ context.Context, payment Payment) error {
	store.mu.Lock()
	defer store.mu.Unlock()
	store.state.payments[payment.ReservationID] = payment
	return nil
}

func (store *stubStore) GetPaymentByReservation(_ context.Context, reservationID ReservationID) (Payment, error) {
	store.mu.Lock()
	defer store.mu.Unlock()
	payment, ok := store.state.payments[reservationID]
	if !ok {
		return Payment{}, fmt.Errorf("%w: payment for %s", ErrNotFound, reservationID)
	}
	return payment, nil
}

func (store *stubStore) snapshot() stubState {
	store.mu.Lock()
	defer store.mu.Unlock()
	return store.state.clone()
}

func (store *stubStore) mustCategory(test *testing.T, categoryID CategoryID) TicketCategory {
	test.Helper()
	category, err := store.GetCategory(context.Background(), categoryID)
	if err != nil {
		test.Fatalf("category lookup: %v", err)
	}
	return category
}

func (store *stubStore) mustReservation(test *testing.T, reservationID ReservationID) Reservation {
	test.Helper()
	reservation, err := store.GetReservation(context.Background(), reservationID)
	if err != nil {
		test.Fatalf("reservation lookup: %v", err)
	}
	return reservation
}

// stubCache is an in-memory StockCache that can be switched into a failing mode.
type stubCache struct {
	mu      sync.Mutex
	values  map[CategoryID]int
	corrupt map[CategoryID]bool
	err     error
	gets    int
	sets    int
}

func newStubCache() *stubCache {
	return &stubCache{values: map[CategoryID]int{}, corrupt: map[CategoryID]bool{}}
}

func (cache *stubCache) Get(_ context.Context, categoryID CategoryID) (int, bool, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.gets++
	if cache.err != nil {
		return 0, false, cache.err
	}
	if cache.corrupt[categoryID] {
		return 0, false, fmt.Errorf("%w: %s", ErrCorruptCacheEntry, categoryID)
	}
	value, ok := cache.values[categoryID]
	return value, ok, nil
}

func (cache *stubCache) Set(_ context.Context, categoryID CategoryID, availableStock int) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.sets++
	if cache.err != nil {
		return cache.err
	}
	delete(cache.corrupt, categoryID)
	cache.values[categoryID] = availableStock
	return nil
}

func (cache *stubCache) setError(err error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.err = err
}

var errStubUnavailable = errors.New("connection refused")

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, time.March, 14, 19, 0, 0, 0, time.UTC)}
}

func (clock *testClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *testClock) Advance(duration time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(duration)
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (ids *sequentialIDs) NewID() string {
	ids.mu.Lock()
	defer ids.mu.Unlock()
	ids.next++
	return fmt.Sprintf("id-%04d", ids.next)
}

type fixture struct {
	store    *stubStore
	clock    *testClock
	service  *Service
	event    Event
	category TicketCategory
}

func newFixture(test *testing.T, basePrice int64, allocation int, options ...ServiceOption) fixture {
	test.Helper()
	store := newStubStore(test)
	clock := newTestClock()
	ids := &sequentialIDs{}
	allOptions := append([]ServiceOption{WithIDGenerator(ids.NewID)}, options...)
	service, err := NewService(store, clock.Now, allOptions...)
	if err != nil {
		test.Fatalf("service init: %v", err)
	}
	ctx := context.Background()
	venue, err := service.RegisterVenue(ctx, "Olympic Hall", "424 Olympic-ro", allocation)
	if err != nil {
		test.Fatalf("register venue: %v", err)
	}
	event, err := service.RegisterEvent(ctx, venue.ID, "Spring Tour", "The Quiet Ones", clock.Now().Add(30*24*time.Hour))
	if err != nil {
		test.Fatalf("register event: %v", err)
	}
	category, err := service.RegisterCategory(ctx, event.ID, "VIP", decimal.NewFromInt(basePrice), allocation)
	if err != nil {
		test.Fatalf("register category: %v", err)
	}
	return fixture{store: store, clock: clock, service: service, event: event, category: category}
}

func (fixture fixture) command(test *testing.T, key string, user string, quantity int) BookingCommand {
	test.Helper()
	command, err := NewBookingCommand(key, user, fixture.event.ID.String(), fixture.category.ID.String(), quantity)
	if err != nil {
		test.Fatalf("booking command: %v", err)
	}
	return command
}

func (fixture fixture) mustBook(test *testing.T, key string, quantity int) Reservation {
	test.Helper()
	reservation, err := fixture.service.ProcessBooking(context.Background(), fixture.command(test, key, "user-1", quantity))
	if err != nil {
		test.Fatalf("process booking %s: %v", key, err)
	}
	return reservation
}

func mustDecimal(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		test.Fatalf("decimal %q: %v", raw, err)
	}
	return value
}
