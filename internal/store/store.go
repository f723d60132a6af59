// Package store defines the transactional boundary the booking engine runs
// in, plus an in-memory implementation used by tests and local runs.
package store

import (
	"context"
	"time"

	"github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/listing"
	"github.com/servemate/service-booking/internal/domain/quota"
)

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Bookings() booking.BookingRepository
	Proposals() booking.ProposalRepository
	Listings() listing.Repository
	Counters() quota.CounterRepository
}

// UnitOfWork runs fn inside a transaction. A nil return commits; any error
// rolls back every write made through tx.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Recount recomputes every quota counter that admission at now can read
// from booking and listing rows.
func Recount(ctx context.Context, tx Tx, now time.Time) (map[quota.Key]int64, error) {
	bookings, err := tx.Bookings().FindCounted(ctx, quota.MonthStart(now))
	if err != nil {
		return nil, err
	}
	listings, err := tx.Listings().FindActive(ctx)
	if err != nil {
		return nil, err
	}
	sets := make([][]quota.Key, 0, len(bookings)+len(listings))
	for _, b := range bookings {
		sets = append(sets, quota.BookingKeys(b))
	}
	for _, l := range listings {
		sets = append(sets, quota.ListingKeys(l.ProviderID(), l.Active()))
	}
	return quota.Tally(sets...), nil
}
