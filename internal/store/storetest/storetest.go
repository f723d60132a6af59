// Package storetest holds the behaviour every store.UnitOfWork
// implementation must share. Implementations call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/listing"
	"github.com/servemate/service-booking/internal/domain/quota"
	"github.com/servemate/service-booking/internal/store"
)

// Base is the reference instant used by the suite. It is whole-second so
// stores with coarse time encodings compare cleanly.
var Base = time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.UnitOfWork

// Run executes the conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, uow store.UnitOfWork)
	}{
		{"BookingRoundTrip", testBookingRoundTrip},
		{"BookingVersionConflict", testBookingVersionConflict},
		{"RollbackDiscardsWrites", testRollback},
		{"FindPendingOverlapping", testFindPendingOverlapping},
		{"FindPendingSince", testFindPendingSince},
		{"Proposals", testProposals},
		{"Listings", testListings},
		{"Counters", testCounters},
		{"RecountAndStats", testRecountAndStats},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// NewBooking builds a pending booking with the given offsets from Base.
func NewBooking(t *testing.T, serviceID, providerID uuid.UUID, start, length, created time.Duration) *booking.Booking {
	t.Helper()
	w, err := booking.NewTimeWindow(Base.Add(start), Base.Add(start+length))
	require.NoError(t, err)
	bk, err := booking.NewBooking(serviceID, uuid.New(), providerID, w, "repair", booking.Location{Area: "east"}, Base.Add(created))
	require.NoError(t, err)
	return bk
}

func inTx(t *testing.T, uow store.UnitOfWork, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, uow.WithinTx(context.Background(), fn))
}

func testBookingRoundTrip(t *testing.T, uow store.UnitOfWork) {
	lat, lng := 1.30, 103.8
	w, err := booking.NewTimeWindow(Base.Add(24*time.Hour), Base.Add(26*time.Hour))
	require.NoError(t, err)
	bk, err := booking.NewBooking(uuid.New(), uuid.New(), uuid.New(), w, "leaky tap", booking.Location{Area: "east", Latitude: &lat, Longitude: &lng}, Base)
	require.NoError(t, err)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		return tx.Bookings().Save(ctx, bk)
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Bookings().FindByID(ctx, bk.ID())
		require.NoError(t, err)
		assert.Equal(t, bk.UserID(), got.UserID())
		assert.Equal(t, booking.StatusPendingProviderReview, got.Status())
		assert.True(t, w.Start.Equal(got.Window().Start))
		assert.True(t, w.End.Equal(got.Window().End))
		assert.Equal(t, "leaky tap", got.Description())
		require.NotNil(t, got.Location().Latitude)
		assert.InDelta(t, lat, *got.Location().Latitude, 1e-9)
		assert.Equal(t, int64(1), got.Version())

		_, err = tx.Bookings().FindByID(ctx, uuid.New())
		assert.True(t, domain.IsNotFound(err), "got %v", err)
		return nil
	})
}

func testBookingVersionConflict(t *testing.T, uow store.UnitOfWork) {
	bk := NewBooking(t, uuid.New(), uuid.New(), time.Hour, time.Hour, 0)
	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		return tx.Bookings().Save(ctx, bk)
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Bookings().FindByIDForUpdate(ctx, bk.ID())
		require.NoError(t, err)
		prev := got.Version()
		_, err = got.Accept(4200, "ok", Base.Add(time.Minute))
		require.NoError(t, err)
		got.IncrementVersion(Base.Add(time.Minute))
		return tx.Bookings().Update(ctx, got, prev)
	})

	// bk still carries version 1.
	_, err := bk.Cancel("stale", booking.ActorUser, Base.Add(2*time.Minute))
	require.NoError(t, err)
	bk.IncrementVersion(Base.Add(2 * time.Minute))
	err = uow.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Bookings().Update(ctx, bk, 1)
	})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict), "got %v", err)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Bookings().FindByID(ctx, bk.ID())
		require.NoError(t, err)
		assert.Equal(t, booking.StatusAcceptedByProvider, got.Status())
		assert.Equal(t, int64(2), got.Version())
		require.NotNil(t, got.NegotiatedPriceCents())
		assert.Equal(t, int64(4200), *got.NegotiatedPriceCents())
		return nil
	})
}

func testRollback(t *testing.T, uow store.UnitOfWork) {
	bk := NewBooking(t, uuid.New(), uuid.New(), time.Hour, time.Hour, 0)
	key := quota.Key{Actor: quota.ActorUser, ActorID: bk.UserID(), Metric: quota.MetricUserActive}
	boom := errors.New("boom")

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.Bookings().Save(ctx, bk))
		_, err := tx.Counters().Add(ctx, key, 1)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Bookings().FindByID(ctx, bk.ID())
		assert.True(t, domain.IsNotFound(err), "got %v", err)
		v, err := tx.Counters().Get(ctx, key)
		require.NoError(t, err)
		assert.Zero(t, v)
		return nil
	})
}

func testFindPendingOverlapping(t *testing.T, uow store.UnitOfWork) {
	providerID, serviceID := uuid.New(), uuid.New()
	winner := NewBooking(t, serviceID, providerID, 10*time.Hour, 2*time.Hour, 0)
	older := NewBooking(t, serviceID, providerID, 11*time.Hour, 2*time.Hour, time.Second)
	newer := NewBooking(t, serviceID, providerID, 9*time.Hour, 2*time.Hour, 2*time.Second)
	touching := NewBooking(t, serviceID, providerID, 12*time.Hour, time.Hour, 3*time.Second)
	elsewhere := NewBooking(t, uuid.New(), uuid.New(), 10*time.Hour, 2*time.Hour, 4*time.Second)
	cancelled := NewBooking(t, serviceID, providerID, 10*time.Hour, time.Hour, 5*time.Second)
	_, err := cancelled.Cancel("", booking.ActorUser, Base)
	require.NoError(t, err)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		for _, b := range []*booking.Booking{winner, newer, older, touching, elsewhere, cancelled} {
			require.NoError(t, tx.Bookings().Save(ctx, b))
		}
		return nil
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Bookings().FindPendingOverlapping(ctx, providerID, winner.Window(), winner.ID())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, older.ID(), got[0].ID())
		assert.Equal(t, newer.ID(), got[1].ID())

		byService, err := tx.Bookings().FindPendingByService(ctx, serviceID)
		require.NoError(t, err)
		assert.Len(t, byService, 4)

		byProvider, err := tx.Bookings().FindPendingByProvider(ctx, providerID)
		require.NoError(t, err)
		require.Len(t, byProvider, 4)
		assert.Equal(t, winner.ID(), byProvider[0].ID())
		assert.Equal(t, touching.ID(), byProvider[3].ID())
		return nil
	})
}

func testFindPendingSince(t *testing.T, uow store.UnitOfWork) {
	providerID, serviceID := uuid.New(), uuid.New()
	first := NewBooking(t, serviceID, providerID, 48*time.Hour, time.Hour, 0)
	second := NewBooking(t, serviceID, providerID, 50*time.Hour, time.Hour, time.Hour)
	third := NewBooking(t, serviceID, providerID, 52*time.Hour, time.Hour, 2*time.Hour)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		for _, b := range []*booking.Booking{third, first, second} {
			require.NoError(t, tx.Bookings().Save(ctx, b))
		}
		return nil
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		ids, err := tx.Bookings().FindPendingSince(ctx, Base.Add(time.Hour), 0)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{first.ID(), second.ID()}, ids, "cutoff is inclusive")

		ids, err = tx.Bookings().FindPendingSince(ctx, Base.Add(5*time.Hour), 2)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{first.ID(), second.ID()}, ids)

		ids, err = tx.Bookings().FindPendingSince(ctx, Base.Add(-time.Second), 0)
		require.NoError(t, err)
		assert.Empty(t, ids)
		return nil
	})
}

func testProposals(t *testing.T, uow store.UnitOfWork) {
	bk := NewBooking(t, uuid.New(), uuid.New(), time.Hour, time.Hour, 0)
	slot, err := booking.NewTimeWindow(Base.Add(5*time.Hour), Base.Add(6*time.Hour))
	require.NoError(t, err)
	p := booking.NewRescheduleProposal(bk.ID(), &slot, Base)
	bare := booking.NewRescheduleProposal(bk.ID(), nil, Base.Add(time.Hour))

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.Bookings().Save(ctx, bk))
		require.NoError(t, tx.Proposals().Save(ctx, p))
		return nil
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Proposals().FindPendingByBooking(ctx, bk.ID())
		require.NoError(t, err)
		assert.Equal(t, p.ID(), got.ID())
		require.NotNil(t, got.Slot())
		assert.True(t, slot.Start.Equal(got.Slot().Start))

		ids, err := tx.Proposals().FindPendingCreatedBefore(ctx, Base, 10)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{p.ID()}, ids)

		prev := got.Version()
		require.NoError(t, got.Reject(Base.Add(time.Minute)))
		got.IncrementVersion()
		require.NoError(t, tx.Proposals().Update(ctx, got, prev))

		err = tx.Proposals().Update(ctx, got, prev)
		assert.True(t, errors.Is(err, domain.ErrVersionConflict), "got %v", err)
		return nil
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Proposals().FindPendingByBooking(ctx, bk.ID())
		assert.True(t, domain.IsNotFound(err), "got %v", err)

		require.NoError(t, tx.Proposals().Save(ctx, bare))
		got, err := tx.Proposals().FindByIDForUpdate(ctx, bare.ID())
		require.NoError(t, err)
		assert.Nil(t, got.Slot())
		assert.Equal(t, booking.ProposalPending, got.Status())
		return nil
	})
}

func testListings(t *testing.T, uow store.UnitOfWork) {
	providerID := uuid.New()
	svc, err := listing.NewServiceListing(uuid.New(), providerID, Base)
	require.NoError(t, err)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Listings().FindByIDForUpdate(ctx, svc.ServiceID())
		assert.True(t, domain.IsNotFound(err), "got %v", err)

		require.True(t, svc.SetActive(true, Base))
		return tx.Listings().Upsert(ctx, svc, 0)
	})

	err = uow.WithinTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.Listings().Upsert(ctx, svc, 0)
	})
	assert.True(t, errors.Is(err, domain.ErrVersionConflict), "got %v", err)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Listings().FindByIDForUpdate(ctx, svc.ServiceID())
		require.NoError(t, err)
		assert.True(t, got.Active())
		assert.Equal(t, int64(1), got.Version())

		active, err := tx.Listings().FindActive(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 1)

		prev := got.Version()
		require.True(t, got.SetActive(false, Base.Add(time.Hour)))
		return tx.Listings().Upsert(ctx, got, prev)
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		active, err := tx.Listings().FindActive(ctx)
		require.NoError(t, err)
		assert.Empty(t, active)
		return nil
	})
}

func testCounters(t *testing.T, uow store.UnitOfWork) {
	a := quota.Key{Actor: quota.ActorProvider, ActorID: uuid.New(), Metric: quota.MetricProviderAccepted}
	b := quota.Key{Actor: quota.ActorUser, ActorID: uuid.New(), Metric: quota.MetricUserCancellations, Scope: "2026-04"}

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		v, err := tx.Counters().Get(ctx, a)
		require.NoError(t, err)
		assert.Zero(t, v)

		v, err = tx.Counters().Add(ctx, a, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), v)
		v, err = tx.Counters().Add(ctx, a, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), v)
		v, err = tx.Counters().Add(ctx, a, -1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), v)

		require.NoError(t, tx.Counters().Set(ctx, b, 7))
		require.NoError(t, tx.Counters().Set(ctx, b, 4))
		return nil
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		all, err := tx.Counters().All(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[quota.Key]int64{a: 2, b: 4}, all)
		return nil
	})
}

func testRecountAndStats(t *testing.T, uow store.UnitOfWork) {
	providerID, serviceID := uuid.New(), uuid.New()
	pending := NewBooking(t, serviceID, providerID, time.Hour, time.Hour, 0)
	accepted := NewBooking(t, serviceID, providerID, 3*time.Hour, time.Hour, time.Second)
	_, err := accepted.Accept(100, "", Base)
	require.NoError(t, err)
	cancelled := NewBooking(t, serviceID, providerID, 5*time.Hour, time.Hour, 2*time.Second)
	_, err = cancelled.Accept(100, "", Base)
	require.NoError(t, err)
	_, err = cancelled.Cancel("", booking.ActorUser, Base.Add(time.Minute))
	require.NoError(t, err)
	done := NewBooking(t, serviceID, providerID, 7*time.Hour, time.Hour, 3*time.Second)
	_, err = done.Cancel("", booking.ActorProvider, Base)
	require.NoError(t, err)
	lastMonth := Base.AddDate(0, -1, 0)
	old := NewBooking(t, serviceID, providerID, 9*time.Hour, time.Hour, lastMonth.Sub(Base))
	_, err = old.Accept(100, "", lastMonth)
	require.NoError(t, err)
	_, err = old.Cancel("", booking.ActorUser, lastMonth.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, old.CountsAsCancellation())
	svc, err := listing.NewServiceListing(serviceID, providerID, Base)
	require.NoError(t, err)
	svc.SetActive(true, Base)

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		for _, b := range []*booking.Booking{pending, accepted, cancelled, done, old} {
			require.NoError(t, tx.Bookings().Save(ctx, b))
		}
		return tx.Listings().Upsert(ctx, svc, 0)
	})

	inTx(t, uow, func(ctx context.Context, tx store.Tx) error {
		got, err := store.Recount(ctx, tx, Base)
		require.NoError(t, err)
		want := quota.Tally(
			quota.BookingKeys(pending),
			quota.BookingKeys(accepted),
			quota.BookingKeys(cancelled),
			quota.ListingKeys(providerID, true),
		)
		assert.Equal(t, want, got)

		counted, err := tx.Bookings().FindCounted(ctx, quota.MonthStart(Base))
		require.NoError(t, err)
		assert.Len(t, counted, 3, "last month's cancellation is not counted")

		counted, err = tx.Bookings().FindCounted(ctx, quota.MonthStart(lastMonth))
		require.NoError(t, err)
		assert.Len(t, counted, 4)

		stats, err := tx.Bookings().CountByStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{
			string(booking.StatusPendingProviderReview): 1,
			string(booking.StatusAcceptedByProvider):    1,
			string(booking.StatusCancelled):             3,
		}, stats)
		return nil
	})
}
