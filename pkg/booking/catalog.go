package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RegisterVenue stores a venue used to seed the catalog.
func (service *Service) RegisterVenue(ctx context.Context, name string, address string, capacity int) (Venue, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Venue{}, fmt.Errorf("%w: venue name is required", ErrValidation)
	}
	if capacity < 0 {
		return Venue{}, fmt.Errorf("%w: venue capacity is negative", ErrValidation)
	}
	venueID, err := NewVenueID(service.newID())
	if err != nil {
		return Venue{}, err
	}
	venue := Venue{ID: venueID, Name: trimmedName, Address: strings.TrimSpace(address), Capacity: capacity}
	if err := service.store.CreateVenue(ctx, venue); err != nil {
		return Venue{}, err
	}
	return venue, nil
}

// RegisterEvent stores a concert held at an existing venue.
func (service *Service) RegisterEvent(ctx context.Context, venueID VenueID, name string, artist string, eventDate time.Time) (Event, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return Event{}, fmt.Errorf("%w: event name is required", ErrValidation)
	}
	if _, err := service.store.GetVenue(ctx, venueID); err != nil {
		return Event{}, err
	}
	eventID, err := NewEventID(service.newID())
	if err != nil {
		return Event{}, err
	}
	event := Event{
		ID:        eventID,
		VenueID:   venueID,
		Name:      trimmedName,
		Artist:    strings.TrimSpace(artist),
		EventDate: eventDate.UTC(),
		Status:    eventStatusScheduled,
	}
	if err := service.store.CreateEvent(ctx, event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// RegisterCategory stores a ticket category with its full allocation available.
func (service *Service) RegisterCategory(ctx context.Context, eventID EventID, name string, basePrice decimal.Decimal, totalAllocation int) (TicketCategory, error) {
	trimmedName := strings.TrimSpace(name)
	if trimmedName == "" {
		return TicketCategory{}, fmt.Errorf("%w: category name is required", ErrValidation)
	}
	price, err := NewAmount(basePrice)
	if err != nil {
		return TicketCategory{}, err
	}
	if totalAllocation <= 0 {
		return TicketCategory{}, ErrInvalidAllocation
	}
	if _, err := service.store.GetEvent(ctx, eventID); err != nil {
		return TicketCategory{}, err
	}
	categoryID, err := NewCategoryID(service.newID())
	if err != nil {
		return TicketCategory{}, err
	}
	category := TicketCategory{
		ID:              categoryID,
		EventID:         eventID,
		Name:            trimmedName,
		BasePrice:       price,
		TotalAllocation: totalAllocation,
		AvailableStock:  totalAllocation,
	}
	if err := service.store.CreateCategory(ctx, category); err != nil {
		return TicketCategory{}, err
	}
	return category, nil
}
