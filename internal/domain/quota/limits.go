package quota

import (
	"fmt"

	"github.com/servemate/service-booking/internal/domain"
)

// Limit names one field of Limits. QuotaExceeded errors carry it so callers
// can render a specific message.
type Limit string

const (
	MaxActiveServices                 Limit = "MaxActiveServices"
	MaxAcceptedBookings               Limit = "MaxAcceptedBookings"
	MaxPendingRequestsPerService      Limit = "MaxPendingRequestsPerService"
	MaxActiveBookings                 Limit = "MaxActiveBookings"
	MaxPendingRequestsTotal           Limit = "MaxPendingRequestsTotal"
	MaxCancellationsPerMonth          Limit = "MaxCancellationsPerMonth"
	MaxActiveBookingsWithSameProvider Limit = "MaxActiveBookingsWithSameProvider"
)

// Limits is the per-deployment admission configuration. It is loaded once
// at startup and never mutated.
type Limits struct {
	// provider side
	MaxActiveServices            int
	MaxAcceptedBookings          int
	MaxPendingRequestsPerService int

	// user side
	MaxActiveBookings                 int
	MaxPendingRequestsTotal           int
	MaxCancellationsPerMonth          int
	MaxActiveBookingsWithSameProvider int
}

// DefaultLimits returns the marketplace defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxActiveServices:                 10,
		MaxAcceptedBookings:               5,
		MaxPendingRequestsPerService:      20,
		MaxActiveBookings:                 10,
		MaxPendingRequestsTotal:           5,
		MaxCancellationsPerMonth:          5,
		MaxActiveBookingsWithSameProvider: 3,
	}
}

// Validate rejects non-positive limits.
func (l Limits) Validate() error {
	for name, v := range l.byName() {
		if v <= 0 {
			return domain.NewValidationError(fmt.Sprintf("limit %s must be positive, got %d", name, v))
		}
	}
	return nil
}

// Value returns the configured value of a limit.
func (l Limits) Value(name Limit) int {
	return l.byName()[name]
}

func (l Limits) byName() map[Limit]int {
	return map[Limit]int{
		MaxActiveServices:                 l.MaxActiveServices,
		MaxAcceptedBookings:               l.MaxAcceptedBookings,
		MaxPendingRequestsPerService:      l.MaxPendingRequestsPerService,
		MaxActiveBookings:                 l.MaxActiveBookings,
		MaxPendingRequestsTotal:           l.MaxPendingRequestsTotal,
		MaxCancellationsPerMonth:          l.MaxCancellationsPerMonth,
		MaxActiveBookingsWithSameProvider: l.MaxActiveBookingsWithSameProvider,
	}
}
