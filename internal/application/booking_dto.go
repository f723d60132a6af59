package application

import (
	"time"

	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/listing"
	"github.com/google/uuid"
)

// CreateBookingRequest holds the data needed to create a new booking request.
type CreateBookingRequest struct {
	ServiceID   uuid.UUID `json:"service_id" binding:"required"`
	WindowStart time.Time `json:"window_start" binding:"required"`
	WindowEnd   time.Time `json:"window_end" binding:"required"`
	Description string    `json:"description"`
	AddressArea string    `json:"address_area"`
	Latitude    *float64  `json:"latitude"`
	Longitude   *float64  `json:"longitude"`
}

// AcceptBookingRequest is the provider's acceptance with the negotiated price.
type AcceptBookingRequest struct {
	PriceCents int64  `json:"price_cents" binding:"required"`
	Notes      string `json:"notes"`
}

// PayBookingRequest records the payment reference for an accepted booking.
type PayBookingRequest struct {
	PaymentRef string `json:"payment_ref" binding:"required"`
}

// CancelBookingRequest carries the optional cancellation reason.
type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

// RaiseDisputeRequest carries the dispute reason.
type RaiseDisputeRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// RespondToProposalRequest is the user's answer to a reschedule proposal.
type RespondToProposalRequest struct {
	Accept *bool `json:"accept" binding:"required"`
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID                   uuid.UUID                `json:"id"`
	ServiceID            uuid.UUID                `json:"service_id"`
	UserID               uuid.UUID                `json:"user_id"`
	ProviderID           uuid.UUID                `json:"provider_id"`
	Status               string                   `json:"status"`
	Window               bookingDomain.TimeWindow `json:"window"`
	Description          string                   `json:"description"`
	Location             bookingDomain.Location   `json:"location"`
	ProviderNotes        string                   `json:"provider_notes,omitempty"`
	NegotiatedPriceCents *int64                   `json:"negotiated_price_cents,omitempty"`
	CancellationReason   string                   `json:"cancellation_reason,omitempty"`
	CancelledBy          string                   `json:"cancelled_by,omitempty"`
	PendingSince         time.Time                `json:"pending_since"`
	AcceptedAt           *time.Time               `json:"accepted_at,omitempty"`
	PaymentAt            *time.Time               `json:"payment_at,omitempty"`
	StartedAt            *time.Time               `json:"started_at,omitempty"`
	CompletedAt          *time.Time               `json:"completed_at,omitempty"`
	CancelledAt          *time.Time               `json:"cancelled_at,omitempty"`
	Version              int64                    `json:"version"`
	CreatedAt            time.Time                `json:"created_at"`
	UpdatedAt            time.Time                `json:"updated_at"`
}

// ProposalDTO is the response representation of a reschedule proposal.
type ProposalDTO struct {
	ID          uuid.UUID                 `json:"id"`
	BookingID   uuid.UUID                 `json:"booking_id"`
	Slot        *bookingDomain.TimeWindow `json:"slot,omitempty"`
	Status      string                    `json:"status"`
	CreatedAt   time.Time                 `json:"created_at"`
	RespondedAt *time.Time                `json:"responded_at,omitempty"`
}

// ListingDTO is the response representation of a service listing.
type ListingDTO struct {
	ServiceID  uuid.UUID `json:"service_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Active     bool      `json:"active"`
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:                   bk.ID(),
		ServiceID:            bk.ServiceID(),
		UserID:               bk.UserID(),
		ProviderID:           bk.ProviderID(),
		Status:               string(bk.Status()),
		Window:               bk.Window(),
		Description:          bk.Description(),
		Location:             bk.Location(),
		ProviderNotes:        bk.ProviderNotes(),
		NegotiatedPriceCents: bk.NegotiatedPriceCents(),
		CancellationReason:   bk.CancellationReason(),
		CancelledBy:          string(bk.CancelledBy()),
		PendingSince:         bk.PendingSince(),
		AcceptedAt:           bk.AcceptedAt(),
		PaymentAt:            bk.PaymentAt(),
		StartedAt:            bk.StartedAt(),
		CompletedAt:          bk.CompletedAt(),
		CancelledAt:          bk.CancelledAt(),
		Version:              bk.Version(),
		CreatedAt:            bk.CreatedAt(),
		UpdatedAt:            bk.UpdatedAt(),
	}
}

func toProposalDTO(p *bookingDomain.RescheduleProposal) ProposalDTO {
	return ProposalDTO{
		ID:          p.ID(),
		BookingID:   p.BookingID(),
		Slot:        p.Slot(),
		Status:      string(p.Status()),
		CreatedAt:   p.CreatedAt(),
		RespondedAt: p.RespondedAt(),
	}
}

func toListingDTO(l *listing.ServiceListing) ListingDTO {
	return ListingDTO{
		ServiceID:  l.ServiceID(),
		ProviderID: l.ProviderID(),
		Active:     l.Active(),
	}
}
