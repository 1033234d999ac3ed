package booking

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a booking operation and its outcome.
type OperationLog struct {
	Operation      string
	ReservationID  ReservationID
	CategoryID     CategoryID
	EventID        EventID
	UserID         UserID
	IdempotencyKey IdempotencyKey
	Quantity       Quantity
	Amount         decimal.Decimal
	FromStatus     ReservationStatus
	ToStatus       ReservationStatus
	Status         string
	Error          error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithStockCache enables the read-through stock cache for pricing and availability.
func WithStockCache(cache StockCache) ServiceOption {
	return func(service *Service) {
		service.cache = cache
	}
}

// WithReservationTTL overrides how long PENDING reservations hold stock.
func WithReservationTTL(ttl time.Duration) ServiceOption {
	return func(service *Service) {
		if ttl > 0 {
			service.reservationTTL = ttl
		}
	}
}

// WithCacheTimeout bounds each cache round trip.
func WithCacheTimeout(timeout time.Duration) ServiceOption {
	return func(service *Service) {
		if timeout > 0 {
			service.cacheTimeout = timeout
		}
	}
}

// WithReaperBatchSize caps how many expired reservations one sweep loads.
func WithReaperBatchSize(size int) ServiceOption {
	return func(service *Service) {
		if size > 0 {
			service.reaperBatchSize = size
		}
	}
}

// WithIDGenerator replaces uuid generation for new records.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.newID = generate
		}
	}
}
