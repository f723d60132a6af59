package booking

import "fmt"

// BookingStatus represents the current state of a booking in its lifecycle.
type BookingStatus string

const (
	StatusPendingProviderReview BookingStatus = "pending_provider_review"
	StatusAcceptedByProvider    BookingStatus = "accepted_by_provider"
	StatusAwaitingPayment       BookingStatus = "awaiting_payment"
	StatusPaymentReceived       BookingStatus = "payment_received"
	StatusInProgress            BookingStatus = "in_progress"
	StatusJobDone               BookingStatus = "job_done"
	StatusCompleted             BookingStatus = "completed"
	StatusCancelled             BookingStatus = "cancelled"
	StatusDisputed              BookingStatus = "disputed"
	StatusNeedRescheduling      BookingStatus = "need_rescheduling"
	StatusAutoCancelled         BookingStatus = "auto_cancelled"
)

// Trigger names a command that may move a booking between statuses.
type Trigger string

const (
	TriggerCreate            Trigger = "create"
	TriggerProviderAccepts   Trigger = "provider_accepts"
	TriggerUserPays          Trigger = "user_pays"
	TriggerProviderStarts    Trigger = "provider_starts"
	TriggerProviderMarksDone Trigger = "provider_marks_done"
	TriggerUserConfirms      Trigger = "user_confirms"
	TriggerCancel            Trigger = "cancel"
	TriggerRaiseDispute      Trigger = "raise_dispute"
	TriggerTimeoutNoResponse Trigger = "timeout_no_response"
	TriggerSlotLost          Trigger = "slot_lost"
	TriggerProposalAccepted  Trigger = "proposal_accepted"
	TriggerProposalRejected  Trigger = "proposal_rejected"
	TriggerProposalExpired   Trigger = "proposal_expired"
)

type transitionRule struct {
	from []BookingStatus
	to   BookingStatus
}

var nonTerminal = []BookingStatus{
	StatusPendingProviderReview,
	StatusAcceptedByProvider,
	StatusAwaitingPayment,
	StatusPaymentReceived,
	StatusInProgress,
	StatusJobDone,
	StatusNeedRescheduling,
}

// transitionTable is the single source of truth for every legal status change.
var transitionTable = map[Trigger]transitionRule{
	TriggerProviderAccepts:   {from: []BookingStatus{StatusPendingProviderReview}, to: StatusAcceptedByProvider},
	TriggerUserPays:          {from: []BookingStatus{StatusAcceptedByProvider, StatusAwaitingPayment}, to: StatusPaymentReceived},
	TriggerProviderStarts:    {from: []BookingStatus{StatusPaymentReceived}, to: StatusInProgress},
	TriggerProviderMarksDone: {from: []BookingStatus{StatusInProgress}, to: StatusJobDone},
	TriggerUserConfirms:      {from: []BookingStatus{StatusJobDone}, to: StatusCompleted},
	TriggerCancel:            {from: nonTerminal, to: StatusCancelled},
	TriggerRaiseDispute: {
		from: []BookingStatus{StatusAcceptedByProvider, StatusAwaitingPayment, StatusPaymentReceived, StatusInProgress},
		to:   StatusDisputed,
	},
	TriggerTimeoutNoResponse: {from: []BookingStatus{StatusPendingProviderReview}, to: StatusAutoCancelled},
	TriggerSlotLost:          {from: []BookingStatus{StatusPendingProviderReview, StatusAwaitingPayment}, to: StatusNeedRescheduling},
	TriggerProposalAccepted:  {from: []BookingStatus{StatusNeedRescheduling}, to: StatusPendingProviderReview},
	TriggerProposalRejected:  {from: []BookingStatus{StatusNeedRescheduling}, to: StatusCancelled},
	TriggerProposalExpired:   {from: []BookingStatus{StatusNeedRescheduling}, to: StatusCancelled},
}

var knownStatuses = map[BookingStatus]bool{
	StatusPendingProviderReview: true,
	StatusAcceptedByProvider:    true,
	StatusAwaitingPayment:       true,
	StatusPaymentReceived:       true,
	StatusInProgress:            true,
	StatusJobDone:               true,
	StatusCompleted:             true,
	StatusCancelled:             true,
	StatusDisputed:              true,
	StatusNeedRescheduling:      true,
	StatusAutoCancelled:         true,
}

// IsValid returns true if the status is a recognized booking status.
func (s BookingStatus) IsValid() bool {
	return knownStatuses[s]
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s BookingStatus) IsTerminal() bool {
	for _, rule := range transitionTable {
		for _, from := range rule.from {
			if from == s {
				return false
			}
		}
	}
	return true
}

// ReachedAcceptance reports whether the booking had been accepted by its
// provider and is still on the main path.
func (s BookingStatus) ReachedAcceptance() bool {
	switch s {
	case StatusAcceptedByProvider, StatusAwaitingPayment, StatusPaymentReceived, StatusInProgress, StatusJobDone:
		return true
	}
	return false
}

// HoldsProviderCapacity reports whether the booking occupies one of the
// provider's concurrent accepted-booking slots.
func (s BookingStatus) HoldsProviderCapacity() bool {
	switch s {
	case StatusAcceptedByProvider, StatusAwaitingPayment, StatusPaymentReceived, StatusInProgress:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus, returning an error if invalid.
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// Allows reports whether trigger t may fire from status s.
func (t Trigger) Allows(s BookingStatus) bool {
	rule, ok := transitionTable[t]
	if !ok {
		return false
	}
	for _, from := range rule.from {
		if from == s {
			return true
		}
	}
	return false
}

// Target returns the destination status of trigger t.
func (t Trigger) Target() (BookingStatus, bool) {
	rule, ok := transitionTable[t]
	return rule.to, ok
}

// Edge is a single (from, to) pair of the state machine.
type Edge struct {
	From BookingStatus
	To   BookingStatus
}

// Edges lists every (from, to) pair the transition table allows.
func Edges() map[Edge]bool {
	edges := make(map[Edge]bool)
	for _, rule := range transitionTable {
		for _, from := range rule.from {
			edges[Edge{From: from, To: rule.to}] = true
		}
	}
	return edges
}
