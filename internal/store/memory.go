package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/listing"
	"github.com/servemate/service-booking/internal/domain/quota"
)

// Memory is an in-process UnitOfWork. Transactions are fully serialized and
// run against a copy of the state that replaces the original on commit.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	bookings  map[uuid.UUID]*booking.Booking
	proposals map[uuid.UUID]*booking.RescheduleProposal
	listings  map[uuid.UUID]*listing.ServiceListing
	counters  map[quota.Key]int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{state: &memState{
		bookings:  make(map[uuid.UUID]*booking.Booking),
		proposals: make(map[uuid.UUID]*booking.RescheduleProposal),
		listings:  make(map[uuid.UUID]*listing.ServiceListing),
		counters:  make(map[quota.Key]int64),
	}}
}

// Stored values are never mutated in place, so copying the maps is enough
// to isolate a transaction.
func (s *memState) copy() *memState {
	cp := &memState{
		bookings:  make(map[uuid.UUID]*booking.Booking, len(s.bookings)),
		proposals: make(map[uuid.UUID]*booking.RescheduleProposal, len(s.proposals)),
		listings:  make(map[uuid.UUID]*listing.ServiceListing, len(s.listings)),
		counters:  make(map[quota.Key]int64, len(s.counters)),
	}
	for k, v := range s.bookings {
		cp.bookings[k] = v
	}
	for k, v := range s.proposals {
		cp.proposals[k] = v
	}
	for k, v := range s.listings {
		cp.listings[k] = v
	}
	for k, v := range s.counters {
		cp.counters[k] = v
	}
	return cp
}

// WithinTx implements UnitOfWork.
func (m *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.copy()
	if err := fn(ctx, &memTx{st: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	st *memState
}

func (t *memTx) Bookings() booking.BookingRepository   { return memBookings{t.st} }
func (t *memTx) Proposals() booking.ProposalRepository { return memProposals{t.st} }
func (t *memTx) Listings() listing.Repository          { return memListings{t.st} }
func (t *memTx) Counters() quota.CounterRepository     { return memCounters{t.st} }

type memBookings struct{ st *memState }

func (r memBookings) FindByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, ok := r.st.bookings[id]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return b.Clone(), nil
}

func (r memBookings) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return r.FindByID(ctx, id)
}

func (r memBookings) filter(keep func(*booking.Booking) bool) []*booking.Booking {
	var out []*booking.Booking
	for _, b := range r.st.bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].CreatedAt().Before(out[j].CreatedAt())
		}
		return out[i].ID().String() < out[j].ID().String()
	})
	return out
}

func (r memBookings) FindPendingOverlapping(_ context.Context, providerID uuid.UUID, window booking.TimeWindow, excludeID uuid.UUID) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool {
		return b.ProviderID() == providerID &&
			b.ID() != excludeID &&
			b.Status() == booking.StatusPendingProviderReview &&
			b.Window().Overlaps(window)
	}), nil
}

func (r memBookings) FindPendingByService(_ context.Context, serviceID uuid.UUID) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool {
		return b.ServiceID() == serviceID && b.Status() == booking.StatusPendingProviderReview
	}), nil
}

func (r memBookings) FindPendingSince(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	matches := r.filter(func(b *booking.Booking) bool {
		return b.Status() == booking.StatusPendingProviderReview && !b.PendingSince().After(cutoff)
	})
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].PendingSince().Before(matches[j].PendingSince())
	})
	ids := make([]uuid.UUID, 0, len(matches))
	for _, b := range matches {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, b.ID())
	}
	return ids, nil
}

func (r memBookings) FindPendingByProvider(_ context.Context, providerID uuid.UUID) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool {
		return b.ProviderID() == providerID && b.Status() == booking.StatusPendingProviderReview
	}), nil
}

func (r memBookings) FindCounted(_ context.Context, cancelledSince time.Time) ([]*booking.Booking, error) {
	return r.filter(func(b *booking.Booking) bool {
		if b.Status() == booking.StatusCancelled && b.CancelledAt() != nil && b.CancelledAt().Before(cancelledSince) {
			return false
		}
		return len(quota.BookingKeys(b)) > 0
	}), nil
}

func (r memBookings) CountByStatus(_ context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, b := range r.st.bookings {
		counts[string(b.Status())]++
	}
	return counts, nil
}

func (r memBookings) Save(_ context.Context, b *booking.Booking) error {
	if _, exists := r.st.bookings[b.ID()]; exists {
		return domain.NewValidationError("booking already exists: " + b.ID().String())
	}
	r.st.bookings[b.ID()] = b.Clone()
	return nil
}

func (r memBookings) Update(_ context.Context, b *booking.Booking, expectedVersion int64) error {
	stored, ok := r.st.bookings[b.ID()]
	if !ok {
		return domain.NewNotFoundError("Booking", b.ID().String())
	}
	if stored.Version() != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.st.bookings[b.ID()] = b.Clone()
	return nil
}

type memProposals struct{ st *memState }

func (r memProposals) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*booking.RescheduleProposal, error) {
	p, ok := r.st.proposals[id]
	if !ok {
		return nil, domain.NewNotFoundError("RescheduleProposal", id.String())
	}
	return p.Clone(), nil
}

func (r memProposals) FindPendingByBooking(_ context.Context, bookingID uuid.UUID) (*booking.RescheduleProposal, error) {
	for _, p := range r.st.proposals {
		if p.BookingID() == bookingID && p.Status() == booking.ProposalPending {
			return p.Clone(), nil
		}
	}
	return nil, domain.NewNotFoundError("RescheduleProposal", "pending for booking "+bookingID.String())
}

func (r memProposals) FindPendingCreatedBefore(_ context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var matches []*booking.RescheduleProposal
	for _, p := range r.st.proposals {
		if p.Status() == booking.ProposalPending && !p.CreatedAt().After(cutoff) {
			matches = append(matches, p)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt().Equal(matches[j].CreatedAt()) {
			return matches[i].CreatedAt().Before(matches[j].CreatedAt())
		}
		return matches[i].ID().String() < matches[j].ID().String()
	})
	ids := make([]uuid.UUID, 0, len(matches))
	for _, p := range matches {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, p.ID())
	}
	return ids, nil
}

func (r memProposals) Save(_ context.Context, p *booking.RescheduleProposal) error {
	r.st.proposals[p.ID()] = p.Clone()
	return nil
}

func (r memProposals) Update(_ context.Context, p *booking.RescheduleProposal, expectedVersion int64) error {
	stored, ok := r.st.proposals[p.ID()]
	if !ok {
		return domain.NewNotFoundError("RescheduleProposal", p.ID().String())
	}
	if stored.Version() != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.st.proposals[p.ID()] = p.Clone()
	return nil
}

type memListings struct{ st *memState }

func (r memListings) FindByIDForUpdate(_ context.Context, serviceID uuid.UUID) (*listing.ServiceListing, error) {
	l, ok := r.st.listings[serviceID]
	if !ok {
		return nil, domain.NewNotFoundError("ServiceListing", serviceID.String())
	}
	return l.Clone(), nil
}

func (r memListings) FindActive(_ context.Context) ([]*listing.ServiceListing, error) {
	var out []*listing.ServiceListing
	for _, l := range r.st.listings {
		if l.Active() {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (r memListings) Upsert(_ context.Context, l *listing.ServiceListing, expectedVersion int64) error {
	var current int64
	if stored, ok := r.st.listings[l.ServiceID()]; ok {
		current = stored.Version()
	}
	if current != expectedVersion {
		return domain.ErrVersionConflict
	}
	r.st.listings[l.ServiceID()] = l.Clone()
	return nil
}

type memCounters struct{ st *memState }

func (r memCounters) Get(_ context.Context, key quota.Key) (int64, error) {
	return r.st.counters[key], nil
}

func (r memCounters) Add(_ context.Context, key quota.Key, delta int64) (int64, error) {
	r.st.counters[key] += delta
	return r.st.counters[key], nil
}

func (r memCounters) Set(_ context.Context, key quota.Key, value int64) error {
	r.st.counters[key] = value
	return nil
}

func (r memCounters) All(_ context.Context) (map[quota.Key]int64, error) {
	out := make(map[quota.Key]int64, len(r.st.counters))
	for k, v := range r.st.counters {
		out[k] = v
	}
	return out, nil
}

// Lock is a no-op; transactions are already serialized.
func (r memCounters) Lock(context.Context) error { return nil }
