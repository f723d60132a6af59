package booking

import (
	"time"

	"github.com/servemate/service-booking/internal/domain"
)

// TimeWindow is a half-open [Start, End) interval of requested service time.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewTimeWindow validates and builds a TimeWindow.
func NewTimeWindow(start, end time.Time) (TimeWindow, error) {
	if !end.After(start) {
		return TimeWindow{}, domain.NewValidationError("window end must be after start")
	}
	return TimeWindow{Start: start.UTC(), End: end.UTC()}, nil
}

// Overlaps reports whether w and other intersect. Windows that only touch
// at an endpoint do not overlap.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Duration returns the length of the window.
func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Shift returns a window of the same length starting at start.
func (w TimeWindow) Shift(start time.Time) TimeWindow {
	return TimeWindow{Start: start, End: start.Add(w.Duration())}
}
