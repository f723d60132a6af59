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

// GormProposalRepository is the GORM-based implementation of ProposalRepository.
type GormProposalRepository struct {
	db *gorm.DB
}

// NewGormProposalRepository creates a new GormProposalRepository.
func NewGormProposalRepository(db *gorm.DB) *GormProposalRepository {
	return &GormProposalRepository{db: db}
}

// FindByIDForUpdate retrieves a proposal and locks its row.
func (r *GormProposalRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*bookingDomain.RescheduleProposal, error) {
	var model ProposalModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("RescheduleProposal", id.String())
		}
		return nil, fmt.Errorf("failed to find proposal by ID: %w", err)
	}
	return toDomainProposal(&model), nil
}

// FindPendingByBooking returns the open proposal of a displaced booking.
func (r *GormProposalRepository) FindPendingByBooking(ctx context.Context, bookingID uuid.UUID) (*bookingDomain.RescheduleProposal, error) {
	var model ProposalModel
	if err := forUpdate(r.db.WithContext(ctx)).
		Where("booking_id = ? AND status = ?", bookingID, string(bookingDomain.ProposalPending)).
		Order("created_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("RescheduleProposal", "pending for booking "+bookingID.String())
		}
		return nil, fmt.Errorf("failed to find pending proposal: %w", err)
	}
	return toDomainProposal(&model), nil
}

// FindPendingCreatedBefore returns ids of open proposals created at or
// before cutoff, oldest first.
func (r *GormProposalRepository) FindPendingCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	q := r.db.WithContext(ctx).
		Model(&ProposalModel{}).
		Where("status = ? AND created_at <= ?", string(bookingDomain.ProposalPending), cutoff).
		Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []uuid.UUID
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to scan stale proposals: %w", err)
	}
	return ids, nil
}

// Save persists a new proposal.
func (r *GormProposalRepository) Save(ctx context.Context, p *bookingDomain.RescheduleProposal) error {
	if err := r.db.WithContext(ctx).Create(toProposalModel(p)).Error; err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}
	return nil
}

// Update persists a proposal with optimistic locking.
func (r *GormProposalRepository) Update(ctx context.Context, p *bookingDomain.RescheduleProposal, expectedVersion int64) error {
	model := toProposalModel(p)
	result := r.db.WithContext(ctx).
		Model(&ProposalModel{}).
		Where("id = ? AND version = ?", model.ID, expectedVersion).
		Updates(map[string]interface{}{
			"status":       model.Status,
			"responded_at": model.RespondedAt,
			"version":      model.Version,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update proposal: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("proposal %s: %w", model.ID, domain.ErrVersionConflict)
	}
	return nil
}
