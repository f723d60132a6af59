package quota

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain"
)

// Kind classifies what a transition asks the ledger to admit.
type Kind string

const (
	KindNewPendingRequest   Kind = "new_pending_request"
	KindAcceptedBooking     Kind = "accepted_booking"
	KindMonthlyCancellation Kind = "monthly_cancellation"
	KindActiveService       Kind = "active_service"
)

// Ledger evaluates admission rules against Limits and keeps counters in
// lock-step with transitions. It holds no state of its own; counters live in
// the CounterRepository of the caller's transaction.
type Ledger struct {
	limits Limits
}

// NewLedger creates a Ledger over immutable limits.
func NewLedger(limits Limits) *Ledger {
	return &Ledger{limits: limits}
}

// Limits returns the configured limits.
func (l *Ledger) Limits() Limits { return l.limits }

// KindsOf reports which admission kinds a set of deltas represents.
func KindsOf(deltas map[Key]int64) []Kind {
	seen := make(map[Kind]bool)
	for k, d := range deltas {
		if d <= 0 {
			continue
		}
		switch k.Metric {
		case MetricUserPending:
			seen[KindNewPendingRequest] = true
		case MetricProviderAccepted:
			seen[KindAcceptedBooking] = true
		case MetricUserCancellations:
			seen[KindMonthlyCancellation] = true
		case MetricProviderActiveServices:
			seen[KindActiveService] = true
		}
	}
	kinds := make([]Kind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// CheckAdmission evaluates the transition from the before to the after
// counted-set membership against current counters. It must run before the
// transition is persisted.
//
// A new pending request is additionally refused while the user's
// cancellations in the current month exceed MaxCancellationsPerMonth. The
// cancellation itself is never refused.
func (l *Ledger) CheckAdmission(ctx context.Context, counters CounterRepository, before, after []Key, now time.Time) error {
	deltas := Deltas(before, after)
	for _, key := range sortedKeys(deltas) {
		delta := deltas[key]
		if delta <= 0 {
			continue
		}
		if key.Metric == MetricUserPending {
			if err := l.checkCancellations(ctx, counters, key, now); err != nil {
				return err
			}
		}
		limit, capped := ceilings[key.Metric]
		if !capped {
			continue
		}
		current, err := counters.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to read counter %s: %w", key, err)
		}
		if ceiling := l.limits.Value(limit); current+delta > int64(ceiling) {
			return domain.NewQuotaExceededError(string(limit), ceiling, current)
		}
	}
	return nil
}

func (l *Ledger) checkCancellations(ctx context.Context, counters CounterRepository, pending Key, now time.Time) error {
	key := Key{Actor: ActorUser, ActorID: pending.ActorID, Metric: MetricUserCancellations, Scope: MonthScope(now)}
	count, err := counters.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	if ceiling := l.limits.MaxCancellationsPerMonth; count > int64(ceiling) {
		return domain.NewQuotaExceededError(string(MaxCancellationsPerMonth), ceiling, count)
	}
	return nil
}

// Apply writes the counter deltas of a transition and re-validates every
// increased capped counter against its limit using the values the
// transaction now sees. Decreases are the release half of the contract.
// A failed re-validation returns QuotaExceeded and the caller must abort
// the transaction.
func (l *Ledger) Apply(ctx context.Context, counters CounterRepository, before, after []Key) error {
	deltas := Deltas(before, after)
	for _, key := range sortedKeys(deltas) {
		delta := deltas[key]
		value, err := counters.Add(ctx, key, delta)
		if err != nil {
			return fmt.Errorf("failed to update counter %s: %w", key, err)
		}
		if delta <= 0 {
			continue
		}
		limit, capped := ceilings[key.Metric]
		if !capped {
			continue
		}
		if ceiling := l.limits.Value(limit); value > int64(ceiling) {
			return domain.NewQuotaExceededError(string(limit), ceiling, value-delta)
		}
	}
	return nil
}

// ProviderFull reports whether the provider holds every accepted booking
// MaxAcceptedBookings allows, as seen by the current transaction.
func (l *Ledger) ProviderFull(ctx context.Context, counters CounterRepository, providerID uuid.UUID) (bool, error) {
	key := Key{Actor: ActorProvider, ActorID: providerID, Metric: MetricProviderAccepted}
	held, err := counters.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return held >= int64(l.limits.MaxAcceptedBookings), nil
}

func sortedKeys(deltas map[Key]int64) []Key {
	keys := make([]Key, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oj := metricOrder[keys[i].Metric], metricOrder[keys[j].Metric]
		if oi != oj {
			return oi < oj
		}
		return keys[i].String() < keys[j].String()
	})
	return keys
}
