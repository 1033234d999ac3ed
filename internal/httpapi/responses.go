package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type reservationResponse struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	EventID        string          `json:"eventId"`
	CategoryID     string          `json:"categoryId"`
	Quantity       int             `json:"quantity"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Status         string          `json:"status"`
	IdempotencyKey string          `json:"idempotencyKey"`
	ExpiresAt      time.Time       `json:"expiresAt"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func newReservationResponse(reservation booking.Reservation) reservationResponse {
	return reservationResponse{
		ID:             reservation.ID.String(),
		UserID:         reservation.UserID.String(),
		EventID:        reservation.EventID.String(),
		CategoryID:     reservation.CategoryID.String(),
		Quantity:       reservation.Quantity.Int(),
		TotalAmount:    reservation.TotalAmount,
		Status:         reservation.Status.String(),
		IdempotencyKey: reservation.IdempotencyKey.String(),
		ExpiresAt:      reservation.ExpiresAt,
		CreatedAt:      reservation.CreatedAt,
		UpdatedAt:      reservation.UpdatedAt,
	}
}

type categoryResponse struct {
	ID              string          `json:"id"`
	EventID         string          `json:"eventId"`
	Name            string          `json:"name"`
	BasePrice       decimal.Decimal `json:"basePrice"`
	TotalAllocation int             `json:"totalAllocation"`
	AvailableStock  int             `json:"availableStock"`
	Version         int64           `json:"version"`
}

func newCategoryResponse(category booking.TicketCategory) categoryResponse {
	return categoryResponse{
		ID:              category.ID.String(),
		EventID:         category.EventID.String(),
		Name:            category.Name,
		BasePrice:       category.BasePrice,
		TotalAllocation: category.TotalAllocation,
		AvailableStock:  category.AvailableStock,
		Version:         category.Version,
	}
}

type entryResponse struct {
	ID         string          `json:"id"`
	BookingID  string          `json:"bookingId"`
	ConcertID  string          `json:"concertId"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	RecordedAt time.Time       `json:"recordedAt"`
}

func newEntryResponse(entry booking.LedgerEntry) entryResponse {
	return entryResponse{
		ID:         entry.ID.String(),
		BookingID:  entry.ReservationID.String(),
		ConcertID:  entry.ConcertID.String(),
		Amount:     entry.Amount,
		Type:       entry.Type.String(),
		RecordedAt: entry.RecordedAt,
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{"error": code, "message": message}
}

// statusFor maps an error kind to its HTTP status and stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, booking.ErrConcurrentUpdate):
		return http.StatusConflict, "concurrent_update"
	case errors.Is(err, booking.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, booking.ErrDuplicateRequest):
		return http.StatusConflict, "duplicate_request"
	case errors.Is(err, booking.ErrInsufficientStock):
		return http.StatusUnprocessableEntity, "insufficient_stock"
	case errors.Is(err, booking.ErrDownstreamUnavailable):
		return http.StatusServiceUnavailable, "downstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func (handler *httpHandler) respondError(ctx *gin.Context, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		handler.logger.Error("request failed", zap.String("path", ctx.FullPath()), zap.Error(err))
		ctx.JSON(status, errorResponse(code, http.StatusText(status)))
		return
	}
	ctx.JSON(status, errorResponse(code, err.Error()))
}
