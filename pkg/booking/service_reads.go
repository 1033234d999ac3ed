package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PricingItem is the surge-priced view of one category.
type PricingItem struct {
	CategoryID      string          `json:"categoryId"`
	CategoryName    string          `json:"categoryName"`
	EventID         string          `json:"eventId"`
	ConcertName     string          `json:"concertName"`
	ArtistName      string          `json:"artistName"`
	BasePrice       decimal.Decimal `json:"basePrice"`
	CurrentPrice    decimal.Decimal `json:"currentPrice"`
	SurgeMultiplier decimal.Decimal `json:"surgeMultiplier"`
	AvailableStock  int             `json:"availableStock"`
	TotalAllocation int             `json:"totalAllocation"`
}

// AvailabilityItem is the availability view of one category.
type AvailabilityItem struct {
	CategoryID      string `json:"categoryId"`
	CategoryName    string `json:"categoryName"`
	EventID         string `json:"eventId"`
	ConcertName     string `json:"concertName"`
	ArtistName      string `json:"artistName"`
	TotalAllocation int    `json:"totalAllocation"`
	AvailableStock  int    `json:"availableStock"`
	Status          string `json:"status"`
}

// SettlementTransaction is one ledger line inside a settlement report.
type SettlementTransaction struct {
	BookingID  string          `json:"bookingId"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	RecordedAt time.Time       `json:"recordedAt"`
}

// SettlementReport aggregates the ledger of one concert.
type SettlementReport struct {
	ConcertID        string                  `json:"concertId"`
	TotalRevenue     decimal.Decimal         `json:"totalRevenue"`
	TotalRefunds     decimal.Decimal         `json:"totalRefunds"`
	NetRevenue       decimal.Decimal         `json:"netRevenue"`
	TransactionCount int                     `json:"transactionCount"`
	BookingCount     int                     `json:"bookingCount"`
	RefundCount      int                     `json:"refundCount"`
	Transactions     []SettlementTransaction `json:"transactions"`
}

// ConcertAnalytics summarizes sales of one concert.
type ConcertAnalytics struct {
	ConcertID       string `json:"concertId"`
	ConcertName     string `json:"concertName"`
	SoldTickets     int    `json:"soldTickets"`
	TotalAllocation int    `json:"totalAllocation"`
	OccupancyRate   string `json:"occupancyRate"`
}

// Dashboard is the analytics overview across concerts.
type Dashboard struct {
	TotalBookings    int64              `json:"totalBookings"`
	ConcertAnalytics []ConcertAnalytics `json:"concertAnalytics"`
}

// PricingForEvent prices every category of a concert from current stock.
func (service *Service) PricingForEvent(ctx context.Context, eventID EventID) ([]PricingItem, error) {
	event, err := service.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	categories, err := service.store.ListCategoriesByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	items := make([]PricingItem, 0, len(categories))
	for _, category := range categories {
		item, err := service.priceCategory(ctx, event, category)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// PricingForCategory prices a single category from current stock.
func (service *Service) PricingForCategory(ctx context.Context, categoryID CategoryID) (PricingItem, error) {
	category, err := service.store.GetCategory(ctx, categoryID)
	if err != nil {
		return PricingItem{}, err
	}
	event, err := service.store.GetEvent(ctx, category.EventID)
	if err != nil {
		return PricingItem{}, err
	}
	return service.priceCategory(ctx, event, category)
}

// AvailabilityForEvent reports stock per category of a concert. It needs no
// price, so a category that cannot be priced still reports its stock.
func (service *Service) AvailabilityForEvent(ctx context.Context, eventID EventID) ([]AvailabilityItem, error) {
	event, err := service.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	categories, err := service.store.ListCategoriesByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	items := make([]AvailabilityItem, 0, len(categories))
	for _, category := range categories {
		available := service.availableStock(ctx, category)
		status := availabilityStatusAvailable
		if available <= 0 {
			status = availabilityStatusSoldOut
		}
		items = append(items, AvailabilityItem{
			CategoryID:      category.ID.String(),
			CategoryName:    category.Name,
			EventID:         event.ID.String(),
			ConcertName:     event.Name,
			ArtistName:      event.Artist,
			TotalAllocation: category.TotalAllocation,
			AvailableStock:  available,
			Status:          status,
		})
	}
	return items, nil
}

// Settlement aggregates the DEBIT/CREDIT history of one concert.
func (service *Service) Settlement(ctx context.Context, concertID EventID) (SettlementReport, error) {
	if _, err := service.store.GetEvent(ctx, concertID); err != nil {
		return SettlementReport{}, err
	}
	entries, err := service.store.ListLedgerEntriesByConcert(ctx, concertID)
	if err != nil {
		return SettlementReport{}, err
	}
	return BuildSettlementReport(concertID, entries), nil
}

// BuildSettlementReport folds ledger entries into a settlement report.
func BuildSettlementReport(concertID EventID, entries []LedgerEntry) SettlementReport {
	report := SettlementReport{
		ConcertID:    concertID.String(),
		TotalRevenue: decimal.Zero,
		TotalRefunds: decimal.Zero,
		Transactions: make([]SettlementTransaction, 0, len(entries)),
	}
	for _, entry := range entries {
		switch entry.Type {
		case EntryDebit:
			report.TotalRevenue = report.TotalRevenue.Add(entry.Amount)
			report.BookingCount++
		case EntryCredit:
			report.TotalRefunds = report.TotalRefunds.Add(entry.Amount)
			report.RefundCount++
		}
		report.Transactions = append(report.Transactions, SettlementTransaction{
			BookingID:  entry.ReservationID.String(),
			Amount:     entry.Amount,
			Type:       entry.Type.String(),
			RecordedAt: entry.RecordedAt,
		})
	}
	report.TransactionCount = len(entries)
	report.NetRevenue = report.TotalRevenue.Sub(report.TotalRefunds)
	return report
}

// Transactions returns the most recent ledger entries across all concerts.
func (service *Service) Transactions(ctx context.Context, limit int) ([]LedgerEntry, error) {
	switch {
	case limit == 0:
		limit = DefaultTransactionsLimit
	case limit < 0 || limit > MaxTransactionsLimit:
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidListLimit, MaxTransactionsLimit)
	}
	return service.store.ListLedgerEntries(ctx, limit)
}

// Dashboard reports total bookings and per-concert occupancy.
func (service *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	total, err := service.store.CountReservations(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	events, err := service.store.ListEvents(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	dashboard := Dashboard{
		TotalBookings:    total,
		ConcertAnalytics: make([]ConcertAnalytics, 0, len(events)),
	}
	for _, event := range events {
		categories, err := service.store.ListCategoriesByEvent(ctx, event.ID)
		if err != nil {
			return Dashboard{}, err
		}
		allocation, available := 0, 0
		for _, category := range categories {
			allocation += category.TotalAllocation
			available += category.AvailableStock
		}
		dashboard.ConcertAnalytics = append(dashboard.ConcertAnalytics, ConcertAnalytics{
			ConcertID:       event.ID.String(),
			ConcertName:     event.Name,
			SoldTickets:     allocation - available,
			TotalAllocation: allocation,
			OccupancyRate:   OccupancyPercent(allocation, available),
		})
	}
	return dashboard, nil
}

// ReconcileStockCache overwrites every cached stock value with the durable
// one and returns how many keys were written.
func (service *Service) ReconcileStockCache(ctx context.Context) (int, error) {
	if service.cache == nil {
		return 0, nil
	}
	categories, err := service.store.ListCategories(ctx)
	if err != nil {
		return 0, err
	}
	written := 0
	var failures []error
	for _, category := range categories {
		if err := service.setCachedStock(ctx, category.ID, category.AvailableStock); err != nil {
			failures = append(failures, err)
			continue
		}
		written++
	}
	reconcileError := errors.Join(failures...)
	service.logOperation(ctx, OperationLog{Operation: operationStockCacheReconcile, Error: reconcileError})
	return written, reconcileError
}

func (service *Service) priceCategory(ctx context.Context, event Event, category TicketCategory) (PricingItem, error) {
	available := service.availableStock(ctx, category)
	quote, err := SurgePrice(category.BasePrice, category.TotalAllocation, available)
	if err != nil {
		return PricingItem{}, err
	}
	return PricingItem{
		CategoryID:      category.ID.String(),
		CategoryName:    category.Name,
		EventID:         category.EventID.String(),
		ConcertName:     event.Name,
		ArtistName:      event.Artist,
		BasePrice:       category.BasePrice,
		CurrentPrice:    quote.Price,
		SurgeMultiplier: quote.Multiplier,
		AvailableStock:  available,
		TotalAllocation: category.TotalAllocation,
	}, nil
}

// availableStock reads through the cache. The durable value in category is
// the fallback for misses and cache failures; misses and corrupt entries
// also seed the cache.
func (service *Service) availableStock(ctx context.Context, category TicketCategory) int {
	if service.cache == nil {
		return category.AvailableStock
	}
	cacheCtx, cancel := context.WithTimeout(ctx, service.cacheTimeout)
	defer cancel()
	cached, found, err := service.cache.Get(cacheCtx, category.ID)
	corrupt := errors.Is(err, ErrCorruptCacheEntry)
	if err != nil {
		readErr := err
		if !corrupt {
			readErr = Unavailable(err)
		}
		service.logOperation(ctx, OperationLog{
			Operation:  operationStockCacheRead,
			CategoryID: category.ID,
			EventID:    category.EventID,
			Error:      readErr,
		})
		if !corrupt {
			return category.AvailableStock
		}
	}
	if found && !corrupt {
		return cached
	}
	if err := service.setCachedStock(ctx, category.ID, category.AvailableStock); err != nil {
		service.logOperation(ctx, OperationLog{
			Operation:  operationStockCacheSeed,
			CategoryID: category.ID,
			EventID:    category.EventID,
			Error:      err,
		})
	}
	return category.AvailableStock
}

func (service *Service) setCachedStock(ctx context.Context, categoryID CategoryID, availableStock int) error {
	cacheCtx, cancel := context.WithTimeout(ctx, service.cacheTimeout)
	defer cancel()
	if err := service.cache.Set(cacheCtx, categoryID, availableStock); err != nil {
		return Unavailable(err)
	}
	return nil
}
