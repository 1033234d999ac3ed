package gormstore

import (
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
)

func mapVenue(row Venue) (booking.Venue, error) {
	venueID, err := booking.NewVenueID(row.ID)
	if err != nil {
		return booking.Venue{}, wrapStoreError(errorSubjectVenue, errorCodeInvalid, err)
	}
	return booking.Venue{
		ID:       venueID,
		Name:     row.Name,
		Address:  row.Address,
		Capacity: row.Capacity,
	}, nil
}

func mapEvent(row Event) (booking.Event, error) {
	eventID, err := booking.NewEventID(row.ID)
	if err != nil {
		return booking.Event{}, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
	}
	venueID, err := booking.NewVenueID(row.VenueID)
	if err != nil {
		return booking.Event{}, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
	}
	return booking.Event{
		ID:        eventID,
		VenueID:   venueID,
		Name:      row.Name,
		Artist:    row.Artist,
		EventDate: row.EventDate.UTC(),
		Status:    row.Status,
	}, nil
}

func mapCategory(row TicketCategory) (booking.TicketCategory, error) {
	categoryID, err := booking.NewCategoryID(row.ID)
	if err != nil {
		return booking.TicketCategory{}, wrapStoreError(errorSubjectCategory, errorCodeInvalid, err)
	}
	eventID, err := booking.NewEventID(row.EventID)
	if err != nil {
		return booking.TicketCategory{}, wrapStoreError(errorSubjectCategory, errorCodeInvalid, err)
	}
	return booking.TicketCategory{
		ID:              categoryID,
		EventID:         eventID,
		Name:            row.Name,
		BasePrice:       row.BasePrice,
		TotalAllocation: row.TotalAllocation,
		AvailableStock:  row.AvailableStock,
		Version:         row.Version,
	}, nil
}

func mapReservation(row Reservation) (booking.Reservation, error) {
	invalid := func(err error) (booking.Reservation, error) {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	reservationID, err := booking.NewReservationID(row.ID)
	if err != nil {
		return invalid(err)
	}
	userID, err := booking.NewUserID(row.UserID)
	if err != nil {
		return invalid(err)
	}
	categoryID, err := booking.NewCategoryID(row.CategoryID)
	if err != nil {
		return invalid(err)
	}
	eventID, err := booking.NewEventID(row.EventID)
	if err != nil {
		return invalid(err)
	}
	quantity, err := booking.NewQuantity(row.Quantity)
	if err != nil {
		return invalid(err)
	}
	status, err := booking.ParseReservationStatus(row.Status)
	if err != nil {
		return invalid(err)
	}
	key, err := booking.NewIdempotencyKey(row.IdempotencyKey)
	if err != nil {
		return invalid(err)
	}
	return booking.Reservation{
		ID:             reservationID,
		UserID:         userID,
		CategoryID:     categoryID,
		EventID:        eventID,
		Quantity:       quantity,
		TotalAmount:    row.TotalAmount,
		Status:         status,
		IdempotencyKey: key,
		ExpiresAt:      row.ExpiresAt.UTC(),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}, nil
}

func mapLedgerEntry(row LedgerEntry) (booking.LedgerEntry, error) {
	entryID, err := booking.NewEntryID(row.ID)
	if err != nil {
		return booking.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	reservationID, err := booking.NewReservationID(row.ReservationID)
	if err != nil {
		return booking.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	concertID, err := booking.NewEventID(row.ConcertID)
	if err != nil {
		return booking.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	entryType, err := booking.ParseEntryType(row.Type)
	if err != nil {
		return booking.LedgerEntry{}, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return booking.LedgerEntry{
		ID:            entryID,
		ReservationID: reservationID,
		ConcertID:     concertID,
		Amount:        row.Amount,
		Type:          entryType,
		RecordedAt:    row.RecordedAt.UTC(),
	}, nil
}

func mapPayment(row Payment) (booking.Payment, error) {
	paymentID, err := booking.NewPaymentID(row.ID)
	if err != nil {
		return booking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	reservationID, err := booking.NewReservationID(row.ReservationID)
	if err != nil {
		return booking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return booking.Payment{
		ID:                   paymentID,
		ReservationID:        reservationID,
		Amount:               row.Amount,
		Currency:             row.Currency,
		Method:               row.Method,
		GatewayTransactionID: row.GatewayTransactionID,
		PaidAt:               row.PaidAt.UTC(),
	}, nil
}
