package conflict

import (
	"sort"
	"time"

	"github.com/servemate/service-booking/internal/domain/booking"
)

// SlotStrategy picks the alternative slot offered to a displaced booking.
// taken holds the slots already handed to earlier displaced bookings in the
// same sweep. Returning nil means no alternative could be computed.
type SlotStrategy interface {
	Suggest(winner, displaced *booking.Booking, taken []booking.TimeWindow) *booking.TimeWindow
}

// Displacement is one booking moved to need_rescheduling together with the
// proposal created for it.
type Displacement struct {
	Booking         *booking.Booking
	PreviousVersion int64
	Transition      booking.Transition
	Proposal        *booking.RescheduleProposal
}

// Resolver moves pending requests that compete with an accepted booking out
// of provider review.
type Resolver struct {
	strategy SlotStrategy
}

// NewResolver creates a Resolver. A nil strategy never suggests a slot.
func NewResolver(strategy SlotStrategy) *Resolver {
	if strategy == nil {
		strategy = NoSuggestion{}
	}
	return &Resolver{strategy: strategy}
}

// DisplaceForAcceptance displaces every candidate still in provider review
// whose window overlaps the winner's. Candidates are processed oldest first
// so earlier requesters get first pick of scarce slots.
func (r *Resolver) DisplaceForAcceptance(winner *booking.Booking, candidates []*booking.Booking, at time.Time) ([]Displacement, error) {
	var competing []*booking.Booking
	for _, c := range candidates {
		if c.ID() == winner.ID() || c.ProviderID() != winner.ProviderID() {
			continue
		}
		if c.Status() != booking.StatusPendingProviderReview || !c.Window().Overlaps(winner.Window()) {
			continue
		}
		competing = append(competing, c)
	}
	return r.displace(winner, competing, func(*booking.Booking) string {
		return "slot taken by booking " + winner.ID().String()
	}, at)
}

// DisplaceForCapacity displaces every candidate of the winner's provider
// still in provider review. It runs when the winner's acceptance used the
// provider's last accepted-booking slot, so none of them can be accepted.
func (r *Resolver) DisplaceForCapacity(winner *booking.Booking, candidates []*booking.Booking, at time.Time) ([]Displacement, error) {
	var competing []*booking.Booking
	for _, c := range candidates {
		if c.ID() == winner.ID() || c.ProviderID() != winner.ProviderID() {
			continue
		}
		if c.Status() == booking.StatusPendingProviderReview {
			competing = append(competing, c)
		}
	}
	return r.displace(winner, competing, func(c *booking.Booking) string {
		if c.Window().Overlaps(winner.Window()) {
			return "slot taken by booking " + winner.ID().String()
		}
		return "provider fully booked by booking " + winner.ID().String()
	}, at)
}

// DisplaceForService displaces every pending request of a service that
// stopped accepting bookings. No alternative slot is proposed.
func (r *Resolver) DisplaceForService(candidates []*booking.Booking, at time.Time) ([]Displacement, error) {
	var pending []*booking.Booking
	for _, c := range candidates {
		if c.Status() == booking.StatusPendingProviderReview {
			pending = append(pending, c)
		}
	}
	return r.displace(nil, pending, func(*booking.Booking) string { return "service no longer offered" }, at)
}

func (r *Resolver) displace(winner *booking.Booking, bookings []*booking.Booking, reason func(*booking.Booking) string, at time.Time) ([]Displacement, error) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].CreatedAt().Equal(bookings[j].CreatedAt()) {
			return bookings[i].CreatedAt().Before(bookings[j].CreatedAt())
		}
		return bookings[i].ID().String() < bookings[j].ID().String()
	})

	var taken []booking.TimeWindow
	out := make([]Displacement, 0, len(bookings))
	for _, b := range bookings {
		prev := b.Version()
		tr, err := b.LoseSlot(reason(b), at)
		if err != nil {
			return nil, err
		}
		var slot *booking.TimeWindow
		if winner != nil {
			slot = r.strategy.Suggest(winner, b, taken)
		}
		if slot != nil {
			taken = append(taken, *slot)
		}
		out = append(out, Displacement{
			Booking:         b,
			PreviousVersion: prev,
			Transition:      tr,
			Proposal:        booking.NewRescheduleProposal(b.ID(), slot, at),
		})
	}
	return out, nil
}
