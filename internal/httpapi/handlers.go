package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/health"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type submitBookingRequest struct {
	UserID     string `json:"userId"`
	EventID    string `json:"eventId"`
	CategoryID string `json:"categoryId"`
	Quantity   int    `json:"quantity"`
}

type paymentRequest struct {
	Currency             string `json:"currency"`
	Method               string `json:"method"`
	GatewayTransactionID string `json:"gatewayTransactionId"`
}

type refundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type priceRequest struct {
	BasePrice decimal.Decimal `json:"basePrice"`
}

func (handler *httpHandler) requestContext(ctx *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx.Request.Context(), handler.timeout)
}

func (handler *httpHandler) handleHealth(ctx *gin.Context) {
	result := health.Run(ctx.Request.Context(), handler.checks, handler.timeout)
	status := http.StatusOK
	label := "ok"
	if !result.Healthy {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}
	ctx.JSON(status, gin.H{"status": label, "components": result.Components})
}

func (handler *httpHandler) handleSubmitBooking(ctx *gin.Context) {
	var request submitBookingRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	acceptance, err := handler.submitter.Submit(requestCtx,
		ctx.GetHeader(headerIdempotencyKey),
		request.UserID,
		request.EventID,
		request.CategoryID,
		request.Quantity,
	)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.Header("Location", "/api/v1/bookings/by-key/"+acceptance.IdempotencyKey)
	ctx.JSON(http.StatusAccepted, acceptance)
}

func (handler *httpHandler) handleGetBooking(ctx *gin.Context) {
	reservationID, err := booking.NewReservationID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.GetReservation(requestCtx, reservationID)
	handler.respondReservation(ctx, reservation, err)
}

func (handler *httpHandler) handleGetBookingByKey(ctx *gin.Context) {
	key, err := booking.NewIdempotencyKey(ctx.Param("key"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := handler.service.GetReservationByIdempotencyKey(requestCtx, key)
	handler.respondReservation(ctx, reservation, err)
}

func (handler *httpHandler) handleListBookings(ctx *gin.Context) {
	userID, err := booking.NewUserID(ctx.Query("userId"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservations, err := handler.service.ListUserReservations(requestCtx, userID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]reservationResponse, 0, len(reservations))
	for _, reservation := range reservations {
		payload = append(payload, newReservationResponse(reservation))
	}
	ctx.JSON(http.StatusOK, gin.H{"bookings": payload})
}

func (handler *httpHandler) handleConfirm(ctx *gin.Context) {
	handler.runTransition(ctx, handler.service.Confirm)
}

func (handler *httpHandler) handleDeliver(ctx *gin.Context) {
	handler.runTransition(ctx, handler.service.Deliver)
}

func (handler *httpHandler) handleCancel(ctx *gin.Context) {
	handler.runTransition(ctx, handler.service.Cancel)
}

func (handler *httpHandler) handlePayment(ctx *gin.Context) {
	var request paymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	details, err := booking.NewPaymentDetails(request.Currency, request.Method, request.GatewayTransactionID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	handler.runTransition(ctx, func(requestCtx context.Context, reservationID booking.ReservationID) (booking.Reservation, error) {
		return handler.service.RecordPayment(requestCtx, reservationID, details)
	})
}

func (handler *httpHandler) handleRefund(ctx *gin.Context) {
	var request refundRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with amount"))
		return
	}
	handler.runTransition(ctx, func(requestCtx context.Context, reservationID booking.ReservationID) (booking.Reservation, error) {
		return handler.service.PartialRefund(requestCtx, reservationID, request.Amount)
	})
}

func (handler *httpHandler) runTransition(ctx *gin.Context, transition func(context.Context, booking.ReservationID) (booking.Reservation, error)) {
	reservationID, err := booking.NewReservationID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	reservation, err := transition(requestCtx, reservationID)
	handler.respondReservation(ctx, reservation, err)
}

func (handler *httpHandler) handleEventPricing(ctx *gin.Context) {
	eventID, err := booking.NewEventID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	items, err := handler.service.PricingForEvent(requestCtx, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"concertId": eventID.String(), "categories": items})
}

func (handler *httpHandler) handleCategoryPricing(ctx *gin.Context) {
	categoryID, err := booking.NewCategoryID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	item, err := handler.service.PricingForCategory(requestCtx, categoryID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, item)
}

func (handler *httpHandler) handleAvailability(ctx *gin.Context) {
	eventID, err := booking.NewEventID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	items, err := handler.service.AvailabilityForEvent(requestCtx, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"concertId": eventID.String(), "categories": items})
}

func (handler *httpHandler) handleSettlement(ctx *gin.Context) {
	eventID, err := booking.NewEventID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	report, err := handler.service.Settlement(requestCtx, eventID)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, report)
}

func (handler *httpHandler) handleUpdatePrice(ctx *gin.Context) {
	categoryID, err := booking.NewCategoryID(ctx.Param("id"))
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	var request priceRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body with basePrice"))
		return
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	category, err := handler.service.UpdateBasePrice(requestCtx, categoryID, request.BasePrice)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newCategoryResponse(category))
}

func (handler *httpHandler) handleTransactions(ctx *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(ctx.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_list_limit", "limit must be an integer"))
			return
		}
		limit = parsed
	}
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	entries, err := handler.service.Transactions(requestCtx, limit)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	payload := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, newEntryResponse(entry))
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payload})
}

func (handler *httpHandler) handleDashboard(ctx *gin.Context) {
	requestCtx, cancel := handler.requestContext(ctx)
	defer cancel()
	dashboard, err := handler.service.Dashboard(requestCtx)
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, dashboard)
}

func (handler *httpHandler) respondReservation(ctx *gin.Context, reservation booking.Reservation, err error) {
	if err != nil {
		handler.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, newReservationResponse(reservation))
}
