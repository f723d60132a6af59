package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain/booking"
)

// ActorKind separates user counters from provider counters.
type ActorKind string

const (
	ActorUser     ActorKind = "user"
	ActorProvider ActorKind = "provider"
)

// Metric names a counted set.
type Metric string

const (
	// provider side
	MetricProviderPending        Metric = "pending"
	MetricProviderPendingService Metric = "pending_service"
	MetricProviderAccepted       Metric = "accepted"
	MetricProviderActiveServices Metric = "active_services"

	// user side
	MetricUserPending             Metric = "user_pending"
	MetricUserPendingWithProvider Metric = "pending_with_provider"
	MetricUserActive              Metric = "active"
	MetricUserActiveWithProvider  Metric = "active_with_provider"
	MetricUserCancellations       Metric = "cancellations"
)

// metricOrder fixes the order admission checks run in, so the first denied
// limit is deterministic.
var metricOrder = map[Metric]int{
	MetricUserCancellations:       0,
	MetricUserActive:              1,
	MetricUserPending:             2,
	MetricUserPendingWithProvider: 3,
	MetricUserActiveWithProvider:  4,
	MetricProviderPendingService:  5,
	MetricProviderPending:         6,
	MetricProviderAccepted:        7,
	MetricProviderActiveServices:  8,
}

// ceilings maps capped metrics to the limit that caps them.
var ceilings = map[Metric]Limit{
	MetricProviderAccepted:       MaxAcceptedBookings,
	MetricProviderPendingService: MaxPendingRequestsPerService,
	MetricProviderActiveServices: MaxActiveServices,
	MetricUserActive:             MaxActiveBookings,
	MetricUserPending:            MaxPendingRequestsTotal,
	MetricUserActiveWithProvider: MaxActiveBookingsWithSameProvider,
}

// Key addresses one counter. Scope narrows per-service, per-provider and
// per-month counters and is empty for global ones.
type Key struct {
	Actor   ActorKind
	ActorID uuid.UUID
	Metric  Metric
	Scope   string
}

func (k Key) String() string {
	if k.Scope == "" {
		return fmt.Sprintf("%s:%s:%s", k.Actor, k.ActorID, k.Metric)
	}
	return fmt.Sprintf("%s:%s:%s:%s", k.Actor, k.ActorID, k.Metric, k.Scope)
}

// MarshalText renders the key in its String form.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// MonthScope formats the scope of a monthly counter.
func MonthScope(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// MonthStart returns the first instant of t's UTC calendar month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Stale reports whether k is a monthly counter for a month other than now's.
// Admission never reads stale counters, so recounts leave them out.
func (k Key) Stale(now time.Time) bool {
	return k.Metric == MetricUserCancellations && k.Scope != MonthScope(now)
}

// BookingKeys returns every counter the booking contributes to in its
// current state. The result is the counted-set membership the ledger diffs
// across a transition.
func BookingKeys(b *booking.Booking) []Key {
	if b == nil {
		return nil
	}
	var keys []Key
	status := b.Status()
	if status == booking.StatusPendingProviderReview {
		keys = append(keys,
			Key{Actor: ActorProvider, ActorID: b.ProviderID(), Metric: MetricProviderPending},
			Key{Actor: ActorProvider, ActorID: b.ProviderID(), Metric: MetricProviderPendingService, Scope: b.ServiceID().String()},
			Key{Actor: ActorUser, ActorID: b.UserID(), Metric: MetricUserPending},
			Key{Actor: ActorUser, ActorID: b.UserID(), Metric: MetricUserPendingWithProvider, Scope: b.ProviderID().String()},
		)
	}
	if status.HoldsProviderCapacity() {
		keys = append(keys, Key{Actor: ActorProvider, ActorID: b.ProviderID(), Metric: MetricProviderAccepted})
	}
	if !status.IsTerminal() {
		keys = append(keys,
			Key{Actor: ActorUser, ActorID: b.UserID(), Metric: MetricUserActive},
			Key{Actor: ActorUser, ActorID: b.UserID(), Metric: MetricUserActiveWithProvider, Scope: b.ProviderID().String()},
		)
	}
	if status == booking.StatusCancelled && b.CountsAsCancellation() && b.CancelledAt() != nil {
		keys = append(keys, Key{Actor: ActorUser, ActorID: b.UserID(), Metric: MetricUserCancellations, Scope: MonthScope(*b.CancelledAt())})
	}
	return keys
}

// ListingKeys returns the counters an active service listing contributes to.
func ListingKeys(providerID uuid.UUID, active bool) []Key {
	if !active {
		return nil
	}
	return []Key{{Actor: ActorProvider, ActorID: providerID, Metric: MetricProviderActiveServices}}
}

// Tally sums key sets into counter values. It is the from-scratch recount
// the reconciliation job compares stored counters against.
func Tally(keySets ...[]Key) map[Key]int64 {
	out := make(map[Key]int64)
	for _, keys := range keySets {
		for _, k := range keys {
			out[k]++
		}
	}
	return out
}

// Deltas returns the counter changes implied by moving from before to after.
func Deltas(before, after []Key) map[Key]int64 {
	out := make(map[Key]int64)
	for _, k := range before {
		out[k]--
	}
	for _, k := range after {
		out[k]++
	}
	for k, d := range out {
		if d == 0 {
			delete(out, k)
		}
	}
	return out
}

// CounterRepository persists counters inside the surrounding transaction.
type CounterRepository interface {
	// Get returns the stored value, zero when the counter does not exist.
	Get(ctx context.Context, key Key) (int64, error)
	// Add applies delta atomically and returns the new value as seen by the
	// current transaction.
	Add(ctx context.Context, key Key, delta int64) (int64, error)
	// Set overwrites a counter. Used by reconciliation only.
	Set(ctx context.Context, key Key, value int64) error
	// All returns every stored counter.
	All(ctx context.Context) (map[Key]int64, error)
	// Lock blocks other transactions from writing any counter until the
	// current transaction ends.
	Lock(ctx context.Context) error
}
