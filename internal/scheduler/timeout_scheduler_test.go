package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/servemate/service-booking/internal/application"
	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/domain/booking"
	"github.com/servemate/service-booking/internal/domain/conflict"
	"github.com/servemate/service-booking/internal/domain/quota"
	"github.com/servemate/service-booking/internal/scheduler"
	"github.com/servemate/service-booking/internal/store"
)

var base = time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)

const (
	threshold = 3 * time.Hour
	ttl       = 24 * time.Hour
)

type nopSink struct{}

func (nopSink) Record(context.Context, application.AuditRecord) error { return nil }

type engine struct {
	mem      *store.Memory
	clock    *testclock.Clock
	svc      *application.BookingService
	provider booking.Actor
	service  uuid.UUID
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	e := &engine{
		mem:      store.NewMemory(),
		clock:    testclock.NewClock(base),
		provider: booking.Actor{ID: uuid.New(), Role: booking.ActorProvider},
	}
	e.svc = application.NewBookingService(e.mem, quota.NewLedger(quota.DefaultLimits()),
		conflict.NewResolver(conflict.AfterWinner{}), nopSink{}, e.clock, nil, zap.NewNop(),
		application.Options{InactionThreshold: threshold, ProposalTTL: ttl})

	svc, err := e.svc.ActivateService(context.Background(), e.provider, uuid.New())
	require.NoError(t, err)
	e.service = svc.ServiceID
	return e
}

func (e *engine) request(t *testing.T, start, length time.Duration) uuid.UUID {
	t.Helper()
	dto, err := e.svc.CreateBooking(context.Background(), booking.Actor{ID: uuid.New(), Role: booking.ActorUser},
		application.CreateBookingRequest{ServiceID: e.service, WindowStart: base.Add(start), WindowEnd: base.Add(start + length)})
	require.NoError(t, err)
	return dto.ID
}

func (e *engine) status(t *testing.T, id uuid.UUID) booking.BookingStatus {
	t.Helper()
	dto, err := e.svc.GetBooking(context.Background(), booking.SystemActor("test"), id)
	require.NoError(t, err)
	return booking.BookingStatus(dto.Status)
}

func (e *engine) scheduler(target scheduler.Transitioner) *scheduler.TimeoutScheduler {
	if target == nil {
		target = e.svc
	}
	return scheduler.NewTimeoutScheduler(e.mem, target, nil, e.clock, nil, zap.NewNop(), scheduler.SweepConfig{
		Interval:          time.Minute,
		InactionThreshold: threshold,
		ProposalTTL:       ttl,
		BatchSize:         100,
	})
}

func TestSweepOnce_InactionThresholdBoundary(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	id := e.request(t, 48*time.Hour, time.Hour)
	sweeper := e.scheduler(nil)

	e.clock.Advance(threshold - time.Nanosecond)
	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{}, report)
	assert.Equal(t, booking.StatusPendingProviderReview, e.status(t, id))

	e.clock.Advance(time.Nanosecond)
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{TimedOut: 1}, report)
	assert.Equal(t, booking.StatusAutoCancelled, e.status(t, id))

	// A second pass finds nothing left to do.
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{}, report)
}

func TestSweepOnce_ExpiresStaleProposals(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	winner := e.request(t, 48*time.Hour, 2*time.Hour)
	loser := e.request(t, 48*time.Hour, time.Hour)
	_, err := e.svc.AcceptBooking(ctx, e.provider, winner, application.AcceptBookingRequest{PriceCents: 100})
	require.NoError(t, err)
	sweeper := e.scheduler(nil)

	e.clock.Advance(ttl - time.Second)
	report, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Expired)
	assert.Equal(t, booking.StatusNeedRescheduling, e.status(t, loser))

	e.clock.Advance(time.Second)
	report, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{Expired: 1}, report)
	assert.Equal(t, booking.StatusCancelled, e.status(t, loser))
	assert.Equal(t, booking.StatusAcceptedByProvider, e.status(t, winner))
}

type scriptedTarget struct {
	mu      sync.Mutex
	results map[uuid.UUID]error
	calls   []uuid.UUID
}

func (s *scriptedTarget) TimeoutNoResponse(_ context.Context, id uuid.UUID) (*application.BookingDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, id)
	if err := s.results[id]; err != nil {
		return nil, err
	}
	return &application.BookingDTO{ID: id, Status: string(booking.StatusAutoCancelled)}, nil
}

func (s *scriptedTarget) ExpireProposal(_ context.Context, id uuid.UUID) (*application.BookingDTO, error) {
	return nil, fmt.Errorf("unexpected proposal %s", id)
}

func (s *scriptedTarget) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestSweepOnce_CandidatesFailIndependently(t *testing.T) {
	e := newEngine(t)
	broken := e.request(t, 24*time.Hour, time.Hour)
	stale := e.request(t, 48*time.Hour, time.Hour)
	fine := e.request(t, 72*time.Hour, time.Hour)

	target := &scriptedTarget{results: map[uuid.UUID]error{
		broken: errors.New("database unavailable"),
		stale:  fmt.Errorf("%w: already accepted", domain.ErrSchedulerSkip),
	}}
	e.clock.Advance(threshold)

	report, err := e.scheduler(target).SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduler.SweepReport{TimedOut: 1, Skipped: 1, Failed: 1}, report)
	assert.ElementsMatch(t, []uuid.UUID{broken, stale, fine}, target.calls)
}

func TestSweepOnce_StopsOnCancelledContext(t *testing.T) {
	e := newEngine(t)
	e.request(t, 24*time.Hour, time.Hour)
	e.clock.Advance(threshold)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.scheduler(&scriptedTarget{}).SweepOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

type countingLease struct {
	mu    sync.Mutex
	grant bool
	names []string
}

func (l *countingLease) Acquire(_ context.Context, name string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
	return l.grant, nil
}

func (l *countingLease) attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.names)
}

func TestRun_SweepsOnlyWhileHoldingLease(t *testing.T) {
	e := newEngine(t)
	e.request(t, 24*time.Hour, time.Hour)
	e.clock.Advance(threshold)

	target := &scriptedTarget{}
	l := &countingLease{}
	sweeper := scheduler.NewTimeoutScheduler(e.mem, target, l, e.clock, nil, zap.NewNop(), scheduler.SweepConfig{
		Interval:          time.Minute,
		InactionThreshold: threshold,
		ProposalTTL:       ttl,
		BatchSize:         10,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	require.NoError(t, e.clock.WaitAdvance(time.Minute, time.Second, 1))
	require.Eventually(t, func() bool { return l.attempts() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, target.callCount(), "sweep ran without the lease")

	l.mu.Lock()
	l.grant = true
	l.mu.Unlock()
	require.NoError(t, e.clock.WaitAdvance(time.Minute, time.Second, 1))
	require.Eventually(t, func() bool { return target.callCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, "timeout-sweep", l.names[0])
}
