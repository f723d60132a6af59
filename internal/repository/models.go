package repository

import (
	"time"

	"github.com/google/uuid"
	bookingDomain "github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/listing"
	"github.com/servemate/service-booking/internal/domain/quota"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID                   uuid.UUID  `gorm:"type:uuid;primaryKey"`
	ServiceID            uuid.UUID  `gorm:"type:uuid;index;not null"`
	UserID               uuid.UUID  `gorm:"type:uuid;index;not null"`
	ProviderID           uuid.UUID  `gorm:"type:uuid;index:idx_bookings_provider_status;not null"`
	Status               string     `gorm:"not null;size:30;index:idx_bookings_provider_status;index"`
	WindowStart          time.Time  `gorm:"not null"`
	WindowEnd            time.Time  `gorm:"not null"`
	Description          string     `gorm:"size:2000"`
	AddressArea          string     `gorm:"size:200"`
	Latitude             *float64   `gorm:""`
	Longitude            *float64   `gorm:""`
	ProviderNotes        string     `gorm:"size:1000"`
	NegotiatedPriceCents *int64     `gorm:""`
	PaymentRef           string     `gorm:"size:100"`
	CancellationReason   string     `gorm:"size:500"`
	CancelledBy          string     `gorm:"size:20"`
	CountsAsCancellation bool       `gorm:"not null;default:false"`
	PendingSince         time.Time  `gorm:"not null;index"`
	AcceptedAt           *time.Time `gorm:""`
	PaymentAt            *time.Time `gorm:""`
	StartedAt            *time.Time `gorm:""`
	CompletedAt          *time.Time `gorm:""`
	CancelledAt          *time.Time `gorm:""`
	Version              int64      `gorm:"not null;default:1"`
	CreatedAt            time.Time  `gorm:"not null"`
	UpdatedAt            time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// ProposalModel is the GORM model for the reschedule_proposals table.
type ProposalModel struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	BookingID   uuid.UUID  `gorm:"type:uuid;index;not null"`
	SlotStart   *time.Time `gorm:""`
	SlotEnd     *time.Time `gorm:""`
	Status      string     `gorm:"not null;size:20;index"`
	CreatedAt   time.Time  `gorm:"not null;index"`
	RespondedAt *time.Time `gorm:""`
	Version     int64      `gorm:"not null;default:1"`
}

// TableName returns the table name for the GORM model.
func (ProposalModel) TableName() string {
	return "reschedule_proposals"
}

// ListingModel is the GORM model for the service_listings table.
type ListingModel struct {
	ServiceID  uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProviderID uuid.UUID `gorm:"type:uuid;index;not null"`
	Active     bool      `gorm:"not null;default:false"`
	Version    int64     `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (ListingModel) TableName() string {
	return "service_listings"
}

// QuotaCounterModel is the GORM model for the quota_counters table.
type QuotaCounterModel struct {
	Actor   string    `gorm:"primaryKey;size:20"`
	ActorID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Metric  string    `gorm:"primaryKey;size:40"`
	Scope   string    `gorm:"primaryKey;size:64"`
	Value   int64     `gorm:"not null;default:0"`
}

// TableName returns the table name for the GORM model.
func (QuotaCounterModel) TableName() string {
	return "quota_counters"
}

// Models lists every table the store owns, in migration order.
func Models() []interface{} {
	return []interface{}{&BookingModel{}, &ProposalModel{}, &ListingModel{}, &QuotaCounterModel{}}
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) *BookingModel {
	s := bk.Snapshot()
	return &BookingModel{
		ID:                   s.ID,
		ServiceID:            s.ServiceID,
		UserID:               s.UserID,
		ProviderID:           s.ProviderID,
		Status:               string(s.Status),
		WindowStart:          s.Window.Start,
		WindowEnd:            s.Window.End,
		Description:          s.Description,
		AddressArea:          s.Location.Area,
		Latitude:             s.Location.Latitude,
		Longitude:            s.Location.Longitude,
		ProviderNotes:        s.ProviderNotes,
		NegotiatedPriceCents: s.NegotiatedPriceCents,
		PaymentRef:           s.PaymentRef,
		CancellationReason:   s.CancellationReason,
		CancelledBy:          string(s.CancelledBy),
		CountsAsCancellation: s.CountsAsCancellation,
		PendingSince:         s.PendingSince,
		AcceptedAt:           s.AcceptedAt,
		PaymentAt:            s.PaymentAt,
		StartedAt:            s.StartedAt,
		CompletedAt:          s.CompletedAt,
		CancelledAt:          s.CancelledAt,
		Version:              s.Version,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
	}
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}
	return bookingDomain.ReconstructBooking(bookingDomain.Snapshot{
		ID:                   m.ID,
		ServiceID:            m.ServiceID,
		UserID:               m.UserID,
		ProviderID:           m.ProviderID,
		Status:               status,
		Window:               bookingDomain.TimeWindow{Start: m.WindowStart.UTC(), End: m.WindowEnd.UTC()},
		Description:          m.Description,
		Location:             bookingDomain.Location{Area: m.AddressArea, Latitude: m.Latitude, Longitude: m.Longitude},
		ProviderNotes:        m.ProviderNotes,
		NegotiatedPriceCents: m.NegotiatedPriceCents,
		PaymentRef:           m.PaymentRef,
		CancellationReason:   m.CancellationReason,
		CancelledBy:          bookingDomain.ActorRole(m.CancelledBy),
		CountsAsCancellation: m.CountsAsCancellation,
		PendingSince:         m.PendingSince.UTC(),
		AcceptedAt:           utcPtr(m.AcceptedAt),
		PaymentAt:            utcPtr(m.PaymentAt),
		StartedAt:            utcPtr(m.StartedAt),
		CompletedAt:          utcPtr(m.CompletedAt),
		CancelledAt:          utcPtr(m.CancelledAt),
		Version:              m.Version,
		CreatedAt:            m.CreatedAt.UTC(),
		UpdatedAt:            m.UpdatedAt.UTC(),
	}), nil
}

func toProposalModel(p *bookingDomain.RescheduleProposal) *ProposalModel {
	m := &ProposalModel{
		ID:          p.ID(),
		BookingID:   p.BookingID(),
		Status:      string(p.Status()),
		CreatedAt:   p.CreatedAt(),
		RespondedAt: p.RespondedAt(),
		Version:     p.Version(),
	}
	if slot := p.Slot(); slot != nil {
		start, end := slot.Start, slot.End
		m.SlotStart, m.SlotEnd = &start, &end
	}
	return m
}

func toDomainProposal(m *ProposalModel) *bookingDomain.RescheduleProposal {
	var slot *bookingDomain.TimeWindow
	if m.SlotStart != nil && m.SlotEnd != nil {
		slot = &bookingDomain.TimeWindow{Start: m.SlotStart.UTC(), End: m.SlotEnd.UTC()}
	}
	return bookingDomain.ReconstructProposal(
		m.ID,
		m.BookingID,
		slot,
		bookingDomain.ProposalStatus(m.Status),
		m.CreatedAt.UTC(),
		utcPtr(m.RespondedAt),
		m.Version,
	)
}

func toListingModel(l *listing.ServiceListing) *ListingModel {
	return &ListingModel{
		ServiceID:  l.ServiceID(),
		ProviderID: l.ProviderID(),
		Active:     l.Active(),
		Version:    l.Version(),
		UpdatedAt:  l.UpdatedAt(),
	}
}

func toDomainListing(m *ListingModel) *listing.ServiceListing {
	return listing.ReconstructServiceListing(m.ServiceID, m.ProviderID, m.Active, m.Version, m.UpdatedAt.UTC())
}

func toCounterModel(key quota.Key, value int64) *QuotaCounterModel {
	return &QuotaCounterModel{
		Actor:   string(key.Actor),
		ActorID: key.ActorID,
		Metric:  string(key.Metric),
		Scope:   key.Scope,
		Value:   value,
	}
}

func (m QuotaCounterModel) key() quota.Key {
	return quota.Key{
		Actor:   quota.ActorKind(m.Actor),
		ActorID: m.ActorID,
		Metric:  quota.Metric(m.Metric),
		Scope:   m.Scope,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
