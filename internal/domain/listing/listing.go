package listing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain"
)

// ServiceListing is a provider's bookable service. Only active listings
// accept new booking requests.
type ServiceListing struct {
	serviceID  uuid.UUID
	providerID uuid.UUID
	active     bool
	version    int64
	updatedAt  time.Time
}

// NewServiceListing creates an inactive listing.
func NewServiceListing(serviceID, providerID uuid.UUID, now time.Time) (*ServiceListing, error) {
	if serviceID == uuid.Nil {
		return nil, domain.NewValidationError("service ID is required")
	}
	if providerID == uuid.Nil {
		return nil, domain.NewValidationError("provider ID is required")
	}
	return &ServiceListing{
		serviceID:  serviceID,
		providerID: providerID,
		updatedAt:  now.UTC(),
	}, nil
}

// ReconstructServiceListing rebuilds a listing from persistence data.
func ReconstructServiceListing(serviceID, providerID uuid.UUID, active bool, version int64, updatedAt time.Time) *ServiceListing {
	return &ServiceListing{
		serviceID:  serviceID,
		providerID: providerID,
		active:     active,
		version:    version,
		updatedAt:  updatedAt,
	}
}

func (l *ServiceListing) ServiceID() uuid.UUID  { return l.serviceID }
func (l *ServiceListing) ProviderID() uuid.UUID { return l.providerID }
func (l *ServiceListing) Active() bool          { return l.active }
func (l *ServiceListing) Version() int64        { return l.version }
func (l *ServiceListing) UpdatedAt() time.Time  { return l.updatedAt }

// Clone returns an independent copy of the listing.
func (l *ServiceListing) Clone() *ServiceListing {
	cp := *l
	return &cp
}

// SetActive flips the listing state and bumps its version. It reports
// whether anything changed.
func (l *ServiceListing) SetActive(active bool, now time.Time) bool {
	if l.active == active {
		return false
	}
	l.active = active
	l.version++
	l.updatedAt = now.UTC()
	return true
}

// Repository defines persistence for service listings. A new listing has
// version 0 until first saved.
type Repository interface {
	FindByIDForUpdate(ctx context.Context, serviceID uuid.UUID) (*ServiceListing, error)
	FindActive(ctx context.Context) ([]*ServiceListing, error)
	// Upsert stores the listing, failing with domain.ErrVersionConflict when
	// the stored version is not expectedVersion.
	Upsert(ctx context.Context, l *ServiceListing, expectedVersion int64) error
}
