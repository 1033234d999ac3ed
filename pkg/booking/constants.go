package booking

import "time"

const (
	operationProcessBooking      = "process_booking"
	operationConfirm             = "confirm"
	operationRecordPayment       = "record_payment"
	operationDeliver             = "deliver"
	operationCancel              = "cancel"
	operationPartialRefund       = "partial_refund"
	operationReapExpired         = "reap_expired"
	operationUpdateBasePrice     = "update_base_price"
	operationStockCacheRead      = "stock_cache_read"
	operationStockCacheSeed      = "stock_cache_seed"
	operationStockCacheReconcile = "stock_cache_reconcile"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusSkipped = "skipped"

	errorOperationService = "service"
	errorSubjectCategory  = "category"
	errorSubjectPricing   = "pricing"
	errorCodeCASExhausted = "cas_exhausted"
	errorCodeAllocation   = "allocation"

	// DefaultReservationTTL is how long a PENDING reservation holds its stock.
	DefaultReservationTTL = 5 * time.Minute
	// DefaultCacheTimeout bounds every stock cache round trip.
	DefaultCacheTimeout = 250 * time.Millisecond
	// DefaultReaperBatchSize caps how many expired reservations one sweep loads.
	DefaultReaperBatchSize = 500
	// DefaultTransactionsLimit is used when callers ask for ledger history without a limit.
	DefaultTransactionsLimit = 100
	// MaxTransactionsLimit caps ledger history pages.
	MaxTransactionsLimit = 1000
	// AmountScale is the number of fractional digits money amounts may carry.
	AmountScale = 2

	casMaxAttempts = 3

	defaultCurrency = "KRW"

	eventStatusScheduled = "SCHEDULED"

	availabilityStatusAvailable = "AVAILABLE"
	availabilityStatusSoldOut   = "SOLD_OUT"
)
