package application

import (
	"context"
	"time"
)

// Audit categories and entity types recorded by the engine.
const (
	AuditCategoryBooking = "booking"
	AuditCategoryService = "service"

	EntityBooking = "Booking"
	EntityListing = "ServiceListing"
)

// AuditRecord is one write-only audit entry. Exactly one is recorded per
// committed booking transition, after the commit.
type AuditRecord struct {
	ActorID        string    `json:"actor_id"`
	ActorName      string    `json:"actor_name"`
	ActorRole      string    `json:"actor_role"`
	Category       string    `json:"category"`
	Action         string    `json:"action"`
	EntityType     string    `json:"entity_type"`
	EntityID       string    `json:"entity_id"`
	Detail         string    `json:"detail,omitempty"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	NewStatus      string    `json:"new_status,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// AuditSink receives audit records. Failures are logged by the caller and
// never undo the committed transition.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}

// DisplayFunc renders a UTC instant for humans, e.g. in the provider's
// local timezone.
type DisplayFunc func(t time.Time) string

// UTCDisplay is the default DisplayFunc.
func UTCDisplay(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// LocationDisplay renders instants in loc, e.g. the provider's timezone.
func LocationDisplay(loc *time.Location) DisplayFunc {
	return func(t time.Time) string {
		return t.In(loc).Format(time.RFC3339)
	}
}
