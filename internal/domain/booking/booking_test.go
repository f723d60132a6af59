package booking_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servemate/service-booking/internal/domain"
	"github.com/servemate/service-booking/internal/domain/booking"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func window(t *testing.T, startOffset, length time.Duration) booking.TimeWindow {
	t.Helper()
	w, err := booking.NewTimeWindow(t0.Add(startOffset), t0.Add(startOffset+length))
	require.NoError(t, err)
	return w
}

func newPending(t *testing.T) *booking.Booking {
	t.Helper()
	bk, err := booking.NewBooking(uuid.New(), uuid.New(), uuid.New(), window(t, 24*time.Hour, 2*time.Hour), "fix sink", booking.Location{Area: "north"}, t0)
	require.NoError(t, err)
	return bk
}

func TestEdges_MatchLifecycle(t *testing.T) {
	s := func(from, to booking.BookingStatus) booking.Edge { return booking.Edge{From: from, To: to} }
	want := map[booking.Edge]bool{
		s(booking.StatusPendingProviderReview, booking.StatusAcceptedByProvider): true,
		s(booking.StatusAcceptedByProvider, booking.StatusPaymentReceived):       true,
		s(booking.StatusAwaitingPayment, booking.StatusPaymentReceived):          true,
		s(booking.StatusPaymentReceived, booking.StatusInProgress):               true,
		s(booking.StatusInProgress, booking.StatusJobDone):                       true,
		s(booking.StatusJobDone, booking.StatusCompleted):                        true,

		s(booking.StatusPendingProviderReview, booking.StatusCancelled): true,
		s(booking.StatusAcceptedByProvider, booking.StatusCancelled):    true,
		s(booking.StatusAwaitingPayment, booking.StatusCancelled):       true,
		s(booking.StatusPaymentReceived, booking.StatusCancelled):       true,
		s(booking.StatusInProgress, booking.StatusCancelled):            true,
		s(booking.StatusJobDone, booking.StatusCancelled):               true,
		s(booking.StatusNeedRescheduling, booking.StatusCancelled):      true,

		s(booking.StatusAcceptedByProvider, booking.StatusDisputed): true,
		s(booking.StatusAwaitingPayment, booking.StatusDisputed):    true,
		s(booking.StatusPaymentReceived, booking.StatusDisputed):    true,
		s(booking.StatusInProgress, booking.StatusDisputed):         true,

		s(booking.StatusPendingProviderReview, booking.StatusAutoCancelled):    true,
		s(booking.StatusPendingProviderReview, booking.StatusNeedRescheduling): true,
		s(booking.StatusAwaitingPayment, booking.StatusNeedRescheduling):       true,
		s(booking.StatusNeedRescheduling, booking.StatusPendingProviderReview): true,
	}
	assert.Equal(t, want, booking.Edges())
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	terminal := map[booking.BookingStatus]bool{
		booking.StatusCompleted:     true,
		booking.StatusCancelled:     true,
		booking.StatusDisputed:      true,
		booking.StatusAutoCancelled: true,
	}
	for _, st := range []booking.BookingStatus{
		booking.StatusPendingProviderReview, booking.StatusAcceptedByProvider, booking.StatusAwaitingPayment,
		booking.StatusPaymentReceived, booking.StatusInProgress, booking.StatusJobDone, booking.StatusCompleted,
		booking.StatusCancelled, booking.StatusDisputed, booking.StatusNeedRescheduling, booking.StatusAutoCancelled,
	} {
		assert.Equal(t, terminal[st], st.IsTerminal(), st)
		assert.True(t, st.IsValid(), st)
	}

	_, err := booking.ParseBookingStatus("delivered")
	assert.Error(t, err)
}

func TestNewBooking_Validation(t *testing.T) {
	w := window(t, time.Hour, time.Hour)
	same := uuid.New()

	_, err := booking.NewBooking(uuid.Nil, uuid.New(), uuid.New(), w, "", booking.Location{}, t0)
	assert.True(t, isValidation(err))

	_, err = booking.NewBooking(uuid.New(), same, same, w, "", booking.Location{}, t0)
	assert.True(t, isValidation(err))

	_, err = booking.NewBooking(uuid.New(), uuid.New(), uuid.New(), booking.TimeWindow{Start: t0, End: t0}, "", booking.Location{}, t0)
	assert.True(t, isValidation(err))

	bk, err := booking.NewBooking(uuid.New(), uuid.New(), uuid.New(), w, "", booking.Location{}, t0)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPendingProviderReview, bk.Status())
	assert.Equal(t, int64(1), bk.Version())
	assert.Equal(t, t0, bk.PendingSince())
}

func TestBooking_HappyPath(t *testing.T) {
	bk := newPending(t)

	tr, err := bk.Accept(12000, "bring ladder", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPendingProviderReview, tr.From)
	assert.Equal(t, booking.StatusAcceptedByProvider, tr.To)
	require.NotNil(t, bk.NegotiatedPriceCents())
	assert.Equal(t, int64(12000), *bk.NegotiatedPriceCents())

	tr, err = bk.Pay("pay-1", t0.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAcceptedByProvider, tr.From)
	assert.Equal(t, booking.StatusPaymentReceived, tr.To)
	assert.Equal(t, "pay-1", bk.PaymentRef())

	_, err = bk.Start(t0.Add(3 * time.Minute))
	require.NoError(t, err)
	_, err = bk.MarkDone(t0.Add(4 * time.Minute))
	require.NoError(t, err)
	_, err = bk.Confirm(t0.Add(5 * time.Minute))
	require.NoError(t, err)

	assert.Equal(t, booking.StatusCompleted, bk.Status())
	assert.NotNil(t, bk.CompletedAt())
	assert.True(t, bk.Status().IsTerminal())
}

func TestBooking_AcceptRejectsNonPositivePrice(t *testing.T) {
	bk := newPending(t)
	_, err := bk.Accept(0, "", t0)
	assert.True(t, isValidation(err))
	assert.Equal(t, booking.StatusPendingProviderReview, bk.Status())
}

func TestBooking_InvalidTransitionLeavesStatus(t *testing.T) {
	bk := newPending(t)

	_, err := bk.Start(t0)
	assert.True(t, domain.IsInvalidTransition(err))
	_, err = bk.Confirm(t0)
	assert.True(t, domain.IsInvalidTransition(err))
	_, err = bk.RaiseDispute("late", t0)
	assert.True(t, domain.IsInvalidTransition(err))
	assert.Equal(t, booking.StatusPendingProviderReview, bk.Status())

	_, err = bk.Cancel("changed mind", booking.ActorUser, t0)
	require.NoError(t, err)
	_, err = bk.Cancel("again", booking.ActorUser, t0)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestBooking_CancelCountsOnlyUserAfterAcceptance(t *testing.T) {
	tests := []struct {
		name     string
		accept   bool
		by       booking.ActorRole
		expected bool
	}{
		{name: "user before acceptance", accept: false, by: booking.ActorUser, expected: false},
		{name: "user after acceptance", accept: true, by: booking.ActorUser, expected: true},
		{name: "provider after acceptance", accept: true, by: booking.ActorProvider, expected: false},
		{name: "system after acceptance", accept: true, by: booking.ActorSystem, expected: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bk := newPending(t)
			if tt.accept {
				_, err := bk.Accept(5000, "", t0)
				require.NoError(t, err)
			}
			tr, err := bk.Cancel("reason", tt.by, t0.Add(time.Hour))
			require.NoError(t, err)
			assert.Equal(t, booking.StatusCancelled, tr.To)
			assert.Equal(t, tt.expected, bk.CountsAsCancellation())
			assert.Equal(t, tt.by, bk.CancelledBy())
			require.NotNil(t, bk.CancelledAt())
		})
	}
}

func TestBooking_TimeoutNoResponseBoundary(t *testing.T) {
	threshold := 3 * time.Hour

	bk := newPending(t)
	_, err := bk.TimeoutNoResponse(threshold, t0.Add(threshold-time.Nanosecond))
	assert.True(t, errors.Is(err, domain.ErrSchedulerSkip))
	assert.Equal(t, booking.StatusPendingProviderReview, bk.Status())

	tr, err := bk.TimeoutNoResponse(threshold, t0.Add(threshold))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusAutoCancelled, tr.To)
	assert.Equal(t, booking.ActorSystem, bk.CancelledBy())

	_, err = bk.TimeoutNoResponse(threshold, t0.Add(2*threshold))
	assert.True(t, errors.Is(err, domain.ErrSchedulerSkip))
}

func TestBooking_LoseSlotAndResume(t *testing.T) {
	bk := newPending(t)

	tr, err := bk.LoseSlot("slot taken", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusNeedRescheduling, tr.To)
	assert.Nil(t, bk.NegotiatedPriceCents())

	slot := window(t, 48*time.Hour, 2*time.Hour)
	resumeAt := t0.Add(2 * time.Hour)
	tr, err = bk.ResumeFromProposal(&slot, resumeAt)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPendingProviderReview, tr.To)
	assert.Equal(t, slot, bk.Window())
	assert.Equal(t, resumeAt, bk.PendingSince())
}

func TestBooking_ResumeWithoutSlotKeepsWindow(t *testing.T) {
	bk := newPending(t)
	original := bk.Window()
	_, err := bk.LoseSlot("service closed", t0)
	require.NoError(t, err)

	_, err = bk.ResumeFromProposal(nil, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, original, bk.Window())
}

func TestBooking_CloseAfterProposal(t *testing.T) {
	rejected := newPending(t)
	_, err := rejected.LoseSlot("slot taken", t0)
	require.NoError(t, err)
	_, err = rejected.CloseAfterProposal(booking.TriggerProposalRejected, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, rejected.Status())
	assert.Equal(t, booking.ActorUser, rejected.CancelledBy())
	assert.False(t, rejected.CountsAsCancellation())

	expired := newPending(t)
	_, err = expired.LoseSlot("slot taken", t0)
	require.NoError(t, err)
	_, err = expired.CloseAfterProposal(booking.TriggerProposalExpired, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, booking.ActorSystem, expired.CancelledBy())

	other := newPending(t)
	_, err = other.LoseSlot("slot taken", t0)
	require.NoError(t, err)
	_, err = other.CloseAfterProposal(booking.TriggerCancel, t0)
	assert.True(t, domain.IsInvalidTransition(err))
}

func TestBooking_CloneIsIndependent(t *testing.T) {
	bk := newPending(t)
	cp := bk.Clone()
	_, err := bk.Accept(100, "", t0)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPendingProviderReview, cp.Status())
	assert.Equal(t, bk.ID(), cp.ID())
}

func TestTimeWindow_Overlaps(t *testing.T) {
	a := window(t, 0, 2*time.Hour)
	tests := []struct {
		name string
		b    booking.TimeWindow
		want bool
	}{
		{name: "identical", b: a, want: true},
		{name: "inside", b: window(t, 30*time.Minute, 30*time.Minute), want: true},
		{name: "straddles end", b: window(t, time.Hour, 2*time.Hour), want: true},
		{name: "touches end", b: window(t, 2*time.Hour, time.Hour), want: false},
		{name: "touches start", b: window(t, -time.Hour, time.Hour), want: false},
		{name: "disjoint", b: window(t, 5*time.Hour, time.Hour), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(a))
		})
	}

	_, err := booking.NewTimeWindow(t0, t0.Add(-time.Minute))
	assert.True(t, isValidation(err))
	assert.Equal(t, 2*time.Hour, a.Shift(t0.Add(time.Hour)).Duration())
}

func TestRescheduleProposal_Lifecycle(t *testing.T) {
	slot := window(t, time.Hour, time.Hour)
	p := booking.NewRescheduleProposal(uuid.New(), &slot, t0)
	assert.Equal(t, booking.ProposalPending, p.Status())

	require.NoError(t, p.Accept(t0.Add(time.Minute)))
	assert.Equal(t, booking.ProposalAccepted, p.Status())
	require.NotNil(t, p.RespondedAt())

	assert.True(t, domain.IsInvalidTransition(p.Reject(t0.Add(2*time.Minute))))
	assert.True(t, errors.Is(p.Expire(time.Hour, t0.Add(48*time.Hour)), domain.ErrSchedulerSkip))
}

func TestRescheduleProposal_ExpireBoundary(t *testing.T) {
	ttl := 24 * time.Hour
	p := booking.NewRescheduleProposal(uuid.New(), nil, t0)

	err := p.Expire(ttl, t0.Add(ttl-time.Nanosecond))
	assert.True(t, errors.Is(err, domain.ErrSchedulerSkip))
	assert.Equal(t, booking.ProposalPending, p.Status())

	require.NoError(t, p.Expire(ttl, t0.Add(ttl)))
	assert.Equal(t, booking.ProposalExpired, p.Status())
}

func isValidation(err error) bool {
	var v *domain.ValidationError
	return errors.As(err, &v)
}
