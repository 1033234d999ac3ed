// Package httpapi serves the booking read and transition API over gin.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/health"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/intake"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	headerIdempotencyKey   = "X-Idempotency-Key"
	defaultRequestTimeout  = 5 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// ErrInvalidRouterConfig reports missing router dependencies.
var ErrInvalidRouterConfig = errors.New("httpapi: invalid router config")

// BookingService is the booking surface the API calls.
type BookingService interface {
	GetReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error)
	GetReservationByIdempotencyKey(ctx context.Context, key booking.IdempotencyKey) (booking.Reservation, error)
	ListUserReservations(ctx context.Context, userID booking.UserID) ([]booking.Reservation, error)
	Confirm(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error)
	RecordPayment(ctx context.Context, reservationID booking.ReservationID, details booking.PaymentDetails) (booking.Reservation, error)
	Deliver(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error)
	Cancel(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error)
	PartialRefund(ctx context.Context, reservationID booking.ReservationID, amount decimal.Decimal) (booking.Reservation, error)
	UpdateBasePrice(ctx context.Context, categoryID booking.CategoryID, price decimal.Decimal) (booking.TicketCategory, error)
	PricingForEvent(ctx context.Context, eventID booking.EventID) ([]booking.PricingItem, error)
	PricingForCategory(ctx context.Context, categoryID booking.CategoryID) (booking.PricingItem, error)
	AvailabilityForEvent(ctx context.Context, eventID booking.EventID) ([]booking.AvailabilityItem, error)
	Settlement(ctx context.Context, concertID booking.EventID) (booking.SettlementReport, error)
	Transactions(ctx context.Context, limit int) ([]booking.LedgerEntry, error)
	Dashboard(ctx context.Context) (booking.Dashboard, error)
}

// Submitter accepts booking requests for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, idempotencyKey string, userID string, eventID string, categoryID string, quantity int) (intake.Acceptance, error)
}

// RouterConfig wires the router.
type RouterConfig struct {
	Service        BookingService
	Submitter      Submitter
	Checks         []health.Check
	AllowedOrigins []string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type httpHandler struct {
	service   BookingService
	submitter Submitter
	checks    []health.Check
	timeout   time.Duration
	logger    *zap.Logger
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(config RouterConfig) (*gin.Engine, error) {
	if config.Service == nil {
		return nil, fmt.Errorf("%w: booking service is nil", ErrInvalidRouterConfig)
	}
	if config.Submitter == nil {
		return nil, fmt.Errorf("%w: submitter is nil", ErrInvalidRouterConfig)
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	handler := &httpHandler{
		service:   config.Service,
		submitter: config.Submitter,
		checks:    config.Checks,
		timeout:   timeout,
		logger:    logger.Named("http"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if len(config.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  config.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowHeaders:  []string{"Content-Type", "Origin", "Accept", headerIdempotencyKey},
			ExposeHeaders: []string{"Location"},
			MaxAge:        12 * time.Hour,
		}))
	}

	router.GET("/healthz", handler.handleHealth)

	api := router.Group("/api/v1")
	api.POST("/bookings", handler.handleSubmitBooking)
	api.GET("/bookings", handler.handleListBookings)
	api.GET("/bookings/by-key/:key", handler.handleGetBookingByKey)
	api.GET("/bookings/:id", handler.handleGetBooking)
	api.POST("/bookings/:id/confirm", handler.handleConfirm)
	api.POST("/bookings/:id/payment", handler.handlePayment)
	api.POST("/bookings/:id/deliver", handler.handleDeliver)
	api.POST("/bookings/:id/cancel", handler.handleCancel)
	api.POST("/bookings/:id/refund", handler.handleRefund)

	api.GET("/concerts/:id/pricing", handler.handleEventPricing)
	api.GET("/concerts/:id/availability", handler.handleAvailability)
	api.GET("/concerts/:id/settlement", handler.handleSettlement)
	api.GET("/categories/:id/pricing", handler.handleCategoryPricing)
	api.PUT("/categories/:id/price", handler.handleUpdatePrice)

	api.GET("/transactions", handler.handleTransactions)
	api.GET("/analytics/dashboard", handler.handleDashboard)

	return router, nil
}

// Run serves handler on addr until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
