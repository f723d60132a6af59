package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingRepository defines the persistence contract for booking aggregates.
// Implementations run inside the transaction handed out by the unit of work.
type BookingRepository interface {
	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindByIDForUpdate retrieves a booking and holds its row lock until the
	// surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Booking, error)

	// FindPendingOverlapping returns the provider's bookings still in provider
	// review whose window overlaps window, excluding excludeID.
	FindPendingOverlapping(ctx context.Context, providerID uuid.UUID, window TimeWindow, excludeID uuid.UUID) ([]*Booking, error)

	// FindPendingByService returns every booking in provider review for a service.
	FindPendingByService(ctx context.Context, serviceID uuid.UUID) ([]*Booking, error)

	// FindPendingByProvider returns every booking in provider review for a
	// provider, oldest first.
	FindPendingByProvider(ctx context.Context, providerID uuid.UUID) ([]*Booking, error)

	// FindPendingSince returns ids of bookings in provider review whose
	// pendingSince is at or before cutoff, oldest first.
	FindPendingSince(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)

	// FindCounted returns every booking that contributes to a quota counter.
	// Cancellations before cancelledSince are left out.
	FindCounted(ctx context.Context, cancelledSince time.Time) ([]*Booking, error)

	// CountByStatus returns booking counts grouped by status.
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// Save persists a new booking.
	Save(ctx context.Context, booking *Booking) error

	// Update persists changes to an existing booking. It fails with
	// domain.ErrVersionConflict when the stored version is not expectedVersion.
	Update(ctx context.Context, booking *Booking, expectedVersion int64) error
}

// ProposalRepository defines the persistence contract for reschedule proposals.
type ProposalRepository interface {
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*RescheduleProposal, error)
	FindPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*RescheduleProposal, error)
	// FindPendingCreatedBefore returns ids of pending proposals created at or
	// before cutoff, oldest first.
	FindPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
	Save(ctx context.Context, proposal *RescheduleProposal) error
	Update(ctx context.Context, proposal *RescheduleProposal, expectedVersion int64) error
}
