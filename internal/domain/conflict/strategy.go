package conflict

import (
	"github.com/servemate/service-booking/internal/domain/booking"
)

// NoSuggestion never proposes a slot.
type NoSuggestion struct{}

// Suggest implements SlotStrategy.
func (NoSuggestion) Suggest(_, _ *booking.Booking, _ []booking.TimeWindow) *booking.TimeWindow {
	return nil
}

// AfterWinner proposes the earliest slot of the displaced booking's length
// that starts at or after the winner's end and does not collide with slots
// already handed out.
type AfterWinner struct{}

// Suggest implements SlotStrategy.
func (AfterWinner) Suggest(winner, displaced *booking.Booking, taken []booking.TimeWindow) *booking.TimeWindow {
	slot := displaced.Window().Shift(winner.Window().End)
	for moved := true; moved; {
		moved = false
		for _, t := range taken {
			if slot.Overlaps(t) {
				slot = slot.Shift(t.End)
				moved = true
			}
		}
	}
	return &slot
}

// FixedSlots hands out a known list of open slots in order. Once every slot
// is taken, later displaced bookings get no suggestion.
type FixedSlots struct {
	Slots []booking.TimeWindow
}

// Suggest implements SlotStrategy.
func (f FixedSlots) Suggest(winner, _ *booking.Booking, taken []booking.TimeWindow) *booking.TimeWindow {
	for _, s := range f.Slots {
		if s.Overlaps(winner.Window()) {
			continue
		}
		free := true
		for _, t := range taken {
			if s.Overlaps(t) {
				free = false
				break
			}
		}
		if free {
			slot := s
			return &slot
		}
	}
	return nil
}
