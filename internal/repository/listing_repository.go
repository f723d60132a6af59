package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/domain/listing"
	"gorm.io/gorm"
)

// GormListingRepository is the GORM-based implementation of listing.Repository.
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GormListingRepository.
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// FindByIDForUpdate retrieves a listing and locks its row.
func (r *GormListingRepository) FindByIDForUpdate(ctx context.Context, serviceID uuid.UUID) (*listing.ServiceListing, error) {
	var model ListingModel
	if err := forUpdate(r.db.WithContext(ctx)).Where("service_id = ?", serviceID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("ServiceListing", serviceID.String())
		}
		return nil, fmt.Errorf("failed to find service listing: %w", err)
	}
	return toDomainListing(&model), nil
}

// FindActive returns every active listing.
func (r *GormListingRepository) FindActive(ctx context.Context) ([]*listing.ServiceListing, error) {
	var models []ListingModel
	if err := r.db.WithContext(ctx).Where("active = ?", true).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to find active listings: %w", err)
	}
	out := make([]*listing.ServiceListing, len(models))
	for i := range models {
		out[i] = toDomainListing(&models[i])
	}
	return out, nil
}

// Upsert inserts a new listing or updates an existing one at expectedVersion.
func (r *GormListingRepository) Upsert(ctx context.Context, l *listing.ServiceListing, expectedVersion int64) error {
	model := toListingModel(l)
	if expectedVersion == 0 {
		if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("service listing %s: %w", model.ServiceID, domain.ErrVersionConflict)
			}
			return fmt.Errorf("failed to save service listing: %w", err)
		}
		return nil
	}

	result := r.db.WithContext(ctx).
		Model(&ListingModel{}).
		Where("service_id = ? AND version = ?", model.ServiceID, expectedVersion).
		Updates(map[string]interface{}{
			"active":     model.Active,
			"version":    model.Version,
			"updated_at": model.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update service listing: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("service listing %s: %w", model.ServiceID, domain.ErrVersionConflict)
	}
	return nil
}
