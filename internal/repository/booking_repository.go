package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
	"gorm.io/gorm"
)

// GormBookingRepository is the GORM-based implementation of BookingRepository.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate retrieves a booking and locks its row until the
// surrounding transaction ends.
func (r *GormBookingRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	return r.find(forUpdate(r.db.WithContext(ctx)), id)
}

func (r *GormBookingRepository) find(db *gorm.DB, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// FindPendingOverlapping returns the provider's pending requests whose
// window intersects window, oldest first.
func (r *GormBookingRepository) FindPendingOverlapping(ctx context.Context, providerID uuid.UUID, window bookingDomain.TimeWindow, excludeID uuid.UUID) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("provider_id = ? AND status = ? AND id <> ?", providerID, string(bookingDomain.StatusPendingProviderReview), excludeID).
		Where("window_start < ? AND window_end > ?", window.End, window.Start).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find overlapping requests: %w", err)
	}
	return toDomainBookings(models)
}

// FindPendingByService returns every pending request for a service.
func (r *GormBookingRepository) FindPendingByService(ctx context.Context, serviceID uuid.UUID) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("service_id = ? AND status = ?", serviceID, string(bookingDomain.StatusPendingProviderReview)).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find pending requests for service: %w", err)
	}
	return toDomainBookings(models)
}

// FindPendingByProvider returns every pending request for a provider.
func (r *GormBookingRepository) FindPendingByProvider(ctx context.Context, providerID uuid.UUID) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("provider_id = ? AND status = ?", providerID, string(bookingDomain.StatusPendingProviderReview)).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find pending requests for provider: %w", err)
	}
	return toDomainBookings(models)
}

// FindPendingSince returns ids of requests in provider review since at
// least cutoff.
func (r *GormBookingRepository) FindPendingSince(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("status = ? AND pending_since <= ?", string(bookingDomain.StatusPendingProviderReview), cutoff).
		Order("pending_since ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to scan stale requests: %w", err)
	}
	return ids, nil
}

// FindCounted returns every booking that contributes to a quota counter.
// Counted cancellations older than cancelledSince are skipped.
func (r *GormBookingRepository) FindCounted(ctx context.Context, cancelledSince time.Time) ([]*bookingDomain.Booking, error) {
	var models []BookingModel
	if err := r.db.WithContext(ctx).
		Where("status NOT IN ?", terminalStatuses()).
		Or("status = ? AND counts_as_cancellation = ? AND cancelled_at >= ?", string(bookingDomain.StatusCancelled), true, cancelledSince).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find counted bookings: %w", err)
	}
	return toDomainBookings(models)
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	if err := r.db.WithContext(ctx).Create(toBookingModel(bk)).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// Update persists changes to an existing booking with optimistic locking.
func (r *GormBookingRepository) Update(ctx context.Context, bk *bookingDomain.Booking, expectedVersion int64) error {
	model := toBookingModel(bk)
	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":                 model.Status,
			"window_start":           model.WindowStart,
			"window_end":             model.WindowEnd,
			"provider_notes":         model.ProviderNotes,
			"negotiated_price_cents": model.NegotiatedPriceCents,
			"payment_ref":            model.PaymentRef,
			"cancellation_reason":    model.CancellationReason,
			"cancelled_by":           model.CancelledBy,
			"counts_as_cancellation": model.CountsAsCancellation,
			"pending_since":          model.PendingSince,
			"accepted_at":            model.AcceptedAt,
			"payment_at":             model.PaymentAt,
			"started_at":             model.StartedAt,
			"completed_at":           model.CompletedAt,
			"cancelled_at":           model.CancelledAt,
			"version":                model.Version,
			"updated_at":             model.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("booking %s: %w", model.ID, domain.ErrVersionConflict)
	}

	return nil
}

// CountByStatus returns booking counts grouped by status.
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[string]int64)
	for _, sc := range results {
		counts[sc.Status] = sc.Count
	}
	return counts, nil
}

func toDomainBookings(models []BookingModel) ([]*bookingDomain.Booking, error) {
	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, err
		}
		bookings[i] = bk
	}
	return bookings, nil
}

func terminalStatuses() []string {
	var out []string
	for _, s := range []bookingDomain.BookingStatus{
		bookingDomain.StatusCompleted,
		bookingDomain.StatusCancelled,
		bookingDomain.StatusAutoCancelled,
		bookingDomain.StatusDisputed,
	} {
		out = append(out, string(s))
	}
	return out
}
