package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain"
)

// Location is the coarse address area and coordinates of the job site.
type Location struct {
	Area      string   `json:"area"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Transition describes one applied status change.
type Transition struct {
	Trigger Trigger
	From    BookingStatus
	To      BookingStatus
	At      time.Time
	Reason  string
}

// Booking is the aggregate root for the booking domain.
type Booking struct {
	id         uuid.UUID
	serviceID  uuid.UUID
	userID     uuid.UUID
	providerID uuid.UUID
	status     BookingStatus
	window     TimeWindow

	description   string
	location      Location
	providerNotes string

	negotiatedPriceCents *int64
	paymentRef           string

	cancellationReason string
	cancelledBy        ActorRole
	countsAsCancel     bool

	pendingSince time.Time
	acceptedAt   *time.Time
	paymentAt    *time.Time
	startedAt    *time.Time
	completedAt  *time.Time
	cancelledAt  *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// NewBooking creates a new Booking aggregate with status=pending_provider_review.
func NewBooking(
	serviceID uuid.UUID,
	userID uuid.UUID,
	providerID uuid.UUID,
	window TimeWindow,
	description string,
	location Location,
	now time.Time,
) (*Booking, error) {
	if serviceID == uuid.Nil {
		return nil, domain.NewValidationError("service ID is required")
	}
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user ID is required")
	}
	if providerID == uuid.Nil {
		return nil, domain.NewValidationError("provider ID is required")
	}
	if userID == providerID {
		return nil, domain.NewValidationError("provider cannot book their own service")
	}
	if !window.End.After(window.Start) {
		return nil, domain.NewValidationError("window end must be after start")
	}

	now = now.UTC()
	return &Booking{
		id:           uuid.New(),
		serviceID:    serviceID,
		userID:       userID,
		providerID:   providerID,
		status:       StatusPendingProviderReview,
		window:       window,
		description:  description,
		location:     location,
		pendingSince: now,
		version:      1,
		createdAt:    now,
		updatedAt:    now,
	}, nil
}

// Snapshot carries every persisted field of a Booking.
type Snapshot struct {
	ID                   uuid.UUID
	ServiceID            uuid.UUID
	UserID               uuid.UUID
	ProviderID           uuid.UUID
	Status               BookingStatus
	Window               TimeWindow
	Description          string
	Location             Location
	ProviderNotes        string
	NegotiatedPriceCents *int64
	PaymentRef           string
	CancellationReason   string
	CancelledBy          ActorRole
	CountsAsCancellation bool
	PendingSince         time.Time
	AcceptedAt           *time.Time
	PaymentAt            *time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	CancelledAt          *time.Time
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(s Snapshot) *Booking {
	return &Booking{
		id:                   s.ID,
		serviceID:            s.ServiceID,
		userID:               s.UserID,
		providerID:           s.ProviderID,
		status:               s.Status,
		window:               s.Window,
		description:          s.Description,
		location:             s.Location,
		providerNotes:        s.ProviderNotes,
		negotiatedPriceCents: s.NegotiatedPriceCents,
		paymentRef:           s.PaymentRef,
		cancellationReason:   s.CancellationReason,
		cancelledBy:          s.CancelledBy,
		countsAsCancel:       s.CountsAsCancellation,
		pendingSince:         s.PendingSince,
		acceptedAt:           s.AcceptedAt,
		paymentAt:            s.PaymentAt,
		startedAt:            s.StartedAt,
		completedAt:          s.CompletedAt,
		cancelledAt:          s.CancelledAt,
		version:              s.Version,
		createdAt:            s.CreatedAt,
		updatedAt:            s.UpdatedAt,
	}
}

// Snapshot returns the persisted representation of the booking.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID:                   b.id,
		ServiceID:            b.serviceID,
		UserID:               b.userID,
		ProviderID:           b.providerID,
		Status:               b.status,
		Window:               b.window,
		Description:          b.description,
		Location:             b.location,
		ProviderNotes:        b.providerNotes,
		NegotiatedPriceCents: b.negotiatedPriceCents,
		PaymentRef:           b.paymentRef,
		CancellationReason:   b.cancellationReason,
		CancelledBy:          b.cancelledBy,
		CountsAsCancellation: b.countsAsCancel,
		PendingSince:         b.pendingSince,
		AcceptedAt:           b.acceptedAt,
		PaymentAt:            b.paymentAt,
		StartedAt:            b.startedAt,
		CompletedAt:          b.completedAt,
		CancelledAt:          b.cancelledAt,
		Version:              b.version,
		CreatedAt:            b.createdAt,
		UpdatedAt:            b.updatedAt,
	}
}

// Clone returns an independent copy of the booking.
func (b *Booking) Clone() *Booking {
	return ReconstructBooking(b.Snapshot())
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// ServiceID returns the booked service listing.
func (b *Booking) ServiceID() uuid.UUID { return b.serviceID }

// UserID returns the requesting customer.
func (b *Booking) UserID() uuid.UUID { return b.userID }

// ProviderID returns the provider the request was sent to.
func (b *Booking) ProviderID() uuid.UUID { return b.providerID }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// Window returns the requested service window.
func (b *Booking) Window() TimeWindow { return b.window }

// Description returns the user's job description.
func (b *Booking) Description() string { return b.description }

// Location returns the job site location.
func (b *Booking) Location() Location { return b.location }

// ProviderNotes returns the notes the provider attached on acceptance.
func (b *Booking) ProviderNotes() string { return b.providerNotes }

// NegotiatedPriceCents returns the accepted price, or nil before acceptance.
func (b *Booking) NegotiatedPriceCents() *int64 { return b.negotiatedPriceCents }

// PaymentRef returns the external payment reference.
func (b *Booking) PaymentRef() string { return b.paymentRef }

// CancellationReason returns the cancellation reason.
func (b *Booking) CancellationReason() string { return b.cancellationReason }

// CancelledBy returns who cancelled the booking.
func (b *Booking) CancelledBy() ActorRole { return b.cancelledBy }

// CountsAsCancellation reports whether this booking counts toward the user's
// monthly cancellation limit.
func (b *Booking) CountsAsCancellation() bool { return b.countsAsCancel }

// PendingSince returns when the booking last entered provider review.
func (b *Booking) PendingSince() time.Time { return b.pendingSince }

// AcceptedAt returns the acceptance time.
func (b *Booking) AcceptedAt() *time.Time { return b.acceptedAt }

// PaymentAt returns the payment time.
func (b *Booking) PaymentAt() *time.Time { return b.paymentAt }

// StartedAt returns the time work started.
func (b *Booking) StartedAt() *time.Time { return b.startedAt }

// CompletedAt returns the time the user confirmed completion.
func (b *Booking) CompletedAt() *time.Time { return b.completedAt }

// CancelledAt returns the cancellation time.
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// --- Behavior ---

// fire moves the booking along trigger t if the transition table allows it.
func (b *Booking) fire(t Trigger, at time.Time, reason string) (Transition, error) {
	if !t.Allows(b.status) {
		return Transition{}, domain.NewInvalidTransitionError(string(b.status), string(t))
	}
	to, _ := t.Target()
	tr := Transition{Trigger: t, From: b.status, To: to, At: at.UTC(), Reason: reason}
	b.status = to
	b.updatedAt = tr.At
	return tr, nil
}

// Accept records the provider's acceptance at the negotiated price.
func (b *Booking) Accept(priceCents int64, notes string, at time.Time) (Transition, error) {
	if !TriggerProviderAccepts.Allows(b.status) {
		return Transition{}, domain.NewInvalidTransitionError(string(b.status), string(TriggerProviderAccepts))
	}
	if priceCents <= 0 {
		return Transition{}, domain.NewValidationError("negotiated price must be positive")
	}
	tr, err := b.fire(TriggerProviderAccepts, at, "")
	if err != nil {
		return Transition{}, err
	}
	b.negotiatedPriceCents = &priceCents
	b.providerNotes = notes
	b.acceptedAt = &tr.At
	return tr, nil
}

// Pay records an externally confirmed payment. The booking passes through
// awaiting_payment and lands on payment_received in one step.
func (b *Booking) Pay(paymentRef string, at time.Time) (Transition, error) {
	tr, err := b.fire(TriggerUserPays, at, "")
	if err != nil {
		return Transition{}, err
	}
	b.paymentRef = paymentRef
	b.paymentAt = &tr.At
	return tr, nil
}

// Start marks the job as in progress.
func (b *Booking) Start(at time.Time) (Transition, error) {
	tr, err := b.fire(TriggerProviderStarts, at, "")
	if err != nil {
		return Transition{}, err
	}
	b.startedAt = &tr.At
	return tr, nil
}

// MarkDone records the provider finishing the job.
func (b *Booking) MarkDone(at time.Time) (Transition, error) {
	return b.fire(TriggerProviderMarksDone, at, "")
}

// Confirm records the user confirming completion.
func (b *Booking) Confirm(at time.Time) (Transition, error) {
	tr, err := b.fire(TriggerUserConfirms, at, "")
	if err != nil {
		return Transition{}, err
	}
	b.completedAt = &tr.At
	return tr, nil
}

// Cancel cancels a non-terminal booking. A user cancelling an accepted
// booking is flagged to count toward the monthly cancellation limit.
func (b *Booking) Cancel(reason string, by ActorRole, at time.Time) (Transition, error) {
	accepted := b.status.ReachedAcceptance()
	tr, err := b.fire(TriggerCancel, at, reason)
	if err != nil {
		return Transition{}, err
	}
	b.cancellationReason = reason
	b.cancelledBy = by
	b.cancelledAt = &tr.At
	b.countsAsCancel = by == ActorUser && accepted
	return tr, nil
}

// RaiseDispute moves an accepted booking into dispute.
func (b *Booking) RaiseDispute(reason string, at time.Time) (Transition, error) {
	return b.fire(TriggerRaiseDispute, at, reason)
}

// TimeoutNoResponse auto-cancels a booking the provider has not answered
// within threshold. It returns domain.ErrSchedulerSkip when the booking is
// no longer eligible.
func (b *Booking) TimeoutNoResponse(threshold time.Duration, at time.Time) (Transition, error) {
	if !TriggerTimeoutNoResponse.Allows(b.status) {
		return Transition{}, fmt.Errorf("%w: booking %s is %s", domain.ErrSchedulerSkip, b.id, b.status)
	}
	if age := at.Sub(b.pendingSince); age < threshold {
		return Transition{}, fmt.Errorf("%w: booking %s pending for %s", domain.ErrSchedulerSkip, b.id, age)
	}
	tr, err := b.fire(TriggerTimeoutNoResponse, at, "provider did not respond")
	if err != nil {
		return Transition{}, err
	}
	b.cancellationReason = tr.Reason
	b.cancelledBy = ActorSystem
	b.cancelledAt = &tr.At
	return tr, nil
}

// LoseSlot moves the booking to need_rescheduling after a competing booking
// took its slot. Any negotiated price is dropped.
func (b *Booking) LoseSlot(reason string, at time.Time) (Transition, error) {
	tr, err := b.fire(TriggerSlotLost, at, reason)
	if err != nil {
		return Transition{}, err
	}
	b.negotiatedPriceCents = nil
	b.acceptedAt = nil
	return tr, nil
}

// ResumeFromProposal puts a displaced booking back into provider review,
// adopting the proposed slot when there is one.
func (b *Booking) ResumeFromProposal(slot *TimeWindow, at time.Time) (Transition, error) {
	tr, err := b.fire(TriggerProposalAccepted, at, "")
	if err != nil {
		return Transition{}, err
	}
	if slot != nil {
		b.window = *slot
	}
	b.pendingSince = tr.At
	return tr, nil
}

// CloseAfterProposal cancels a displaced booking whose proposal was
// rejected or expired.
func (b *Booking) CloseAfterProposal(t Trigger, at time.Time) (Transition, error) {
	var by ActorRole
	var reason string
	switch t {
	case TriggerProposalRejected:
		by, reason = ActorUser, "reschedule proposal rejected"
	case TriggerProposalExpired:
		by, reason = ActorSystem, "reschedule proposal expired"
	default:
		return Transition{}, domain.NewInvalidTransitionError(string(b.status), string(t))
	}
	tr, err := b.fire(t, at, reason)
	if err != nil {
		return Transition{}, err
	}
	b.cancellationReason = reason
	b.cancelledBy = by
	b.cancelledAt = &tr.At
	return tr, nil
}

// IncrementVersion bumps the version for optimistic locking.
func (b *Booking) IncrementVersion(at time.Time) {
	b.version++
	b.updatedAt = at.UTC()
}
