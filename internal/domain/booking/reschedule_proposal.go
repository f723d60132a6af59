package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/servemate/service-booking/internal/domain"
)

// ProposalStatus is the lifecycle state of a RescheduleProposal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "pending"
	ProposalAccepted ProposalStatus = "accepted"
	ProposalRejected ProposalStatus = "rejected"
	ProposalExpired  ProposalStatus = "expired"
)

// IsValid returns true if the proposal status is recognized.
func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalPending, ProposalAccepted, ProposalRejected, ProposalExpired:
		return true
	}
	return false
}

// RescheduleProposal offers a displaced booking an alternative slot.
type RescheduleProposal struct {
	id          uuid.UUID
	bookingID   uuid.UUID
	slot        *TimeWindow
	status      ProposalStatus
	createdAt   time.Time
	respondedAt *time.Time
	version     int64
}

// NewRescheduleProposal creates a pending proposal. A nil slot means no
// alternative could be computed.
func NewRescheduleProposal(bookingID uuid.UUID, slot *TimeWindow, now time.Time) *RescheduleProposal {
	return &RescheduleProposal{
		id:        uuid.New(),
		bookingID: bookingID,
		slot:      slot,
		status:    ProposalPending,
		createdAt: now.UTC(),
		version:   1,
	}
}

// ReconstructProposal rebuilds a proposal from persistence data (no validation).
func ReconstructProposal(
	id uuid.UUID,
	bookingID uuid.UUID,
	slot *TimeWindow,
	status ProposalStatus,
	createdAt time.Time,
	respondedAt *time.Time,
	version int64,
) *RescheduleProposal {
	return &RescheduleProposal{
		id:          id,
		bookingID:   bookingID,
		slot:        slot,
		status:      status,
		createdAt:   createdAt,
		respondedAt: respondedAt,
		version:     version,
	}
}

// ID returns the proposal identifier.
func (p *RescheduleProposal) ID() uuid.UUID { return p.id }

// BookingID returns the displaced booking.
func (p *RescheduleProposal) BookingID() uuid.UUID { return p.bookingID }

// Slot returns the proposed window, or nil.
func (p *RescheduleProposal) Slot() *TimeWindow { return p.slot }

// Status returns the proposal status.
func (p *RescheduleProposal) Status() ProposalStatus { return p.status }

// CreatedAt returns when the proposal was made.
func (p *RescheduleProposal) CreatedAt() time.Time { return p.createdAt }

// RespondedAt returns when the proposal reached a terminal status.
func (p *RescheduleProposal) RespondedAt() *time.Time { return p.respondedAt }

// Version returns the entity version for optimistic locking.
func (p *RescheduleProposal) Version() int64 { return p.version }

// Clone returns an independent copy of the proposal.
func (p *RescheduleProposal) Clone() *RescheduleProposal {
	cp := *p
	return &cp
}

func (p *RescheduleProposal) close(to ProposalStatus, at time.Time) error {
	if p.status != ProposalPending {
		return domain.NewInvalidTransitionError(string(p.status), string(to))
	}
	at = at.UTC()
	p.status = to
	p.respondedAt = &at
	return nil
}

// IncrementVersion bumps the version for optimistic locking.
func (p *RescheduleProposal) IncrementVersion() {
	p.version++
}

// Accept records the user taking the proposed slot.
func (p *RescheduleProposal) Accept(at time.Time) error {
	return p.close(ProposalAccepted, at)
}

// Reject records the user declining the proposal.
func (p *RescheduleProposal) Reject(at time.Time) error {
	return p.close(ProposalRejected, at)
}

// Expire closes a proposal left unanswered for at least ttl. It returns
// domain.ErrSchedulerSkip when the proposal is no longer eligible.
func (p *RescheduleProposal) Expire(ttl time.Duration, at time.Time) error {
	if p.status != ProposalPending {
		return fmt.Errorf("%w: proposal %s is %s", domain.ErrSchedulerSkip, p.id, p.status)
	}
	if age := at.Sub(p.createdAt); age < ttl {
		return fmt.Errorf("%w: proposal %s open for %s", domain.ErrSchedulerSkip, p.id, age)
	}
	return p.close(ProposalExpired, at)
}
