// Package sweep cancels reservation holds whose expiry has lapsed. The
// sweep is the only automated path out of pending_request; everything
// else requires an explicit status change.
package sweep

import (
	"context"
	"time"

	"github.com/tourbase/experience-bookings/internal/clock"
	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/pkg/events"
	"github.com/tourbase/experience-bookings/pkg/logger"
)

type HoldRepo interface {
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.ReservationStatus) error
}

// Registrar keeps the recurring sweep alive across restarts and stalls.
type Registrar interface {
	EnsureRecurring(ctx context.Context, name string, every time.Duration, fn func(ctx context.Context))
}

type Sweeper struct {
	repo     HoldRepo
	bus      events.Publisher
	clock    clock.Clock
	interval time.Duration
}

func NewSweeper(repo HoldRepo, bus events.Publisher, clk clock.Clock, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{
		repo:     repo,
		bus:      bus,
		clock:    clk,
		interval: interval,
	}
}

// EnsureScheduled registers the recurring sweep with the scheduler.
// Safe to call repeatedly; the registrar self-heals a stalled entry.
func (s *Sweeper) EnsureScheduled(ctx context.Context, reg Registrar) {
	reg.EnsureRecurring(ctx, "hold-expiry-sweep", s.interval, func(ctx context.Context) {
		s.Process(ctx)
	})
}

// Process cancels every pending hold whose expiry lies strictly in the
// past. One reservation's failure never aborts the batch, and every
// expiry publishes exactly one event.
func (s *Sweeper) Process(ctx context.Context) int {
	now := s.clock.Now()

	holds, err := s.repo.ListExpiredHolds(ctx, now, 0)
	if err != nil {
		logger.ErrorContext(ctx, "Expired holds query failed", "error", err)
		return 0
	}

	expired := 0
	for i := range holds {
		res := &holds[i]
		if err := s.repo.UpdateStatus(ctx, res.ID, domain.ReservationPendingRequest, domain.ReservationCancelled); err != nil {
			// Likely confirmed or cancelled concurrently since the listing.
			logger.WarnContext(ctx, "Skipping hold expiry", "error", err, "reservation_id", res.ID)
			continue
		}

		event := events.ReservationExpiredEvent{
			ReservationID: res.ID,
			ExperienceID:  res.ExperienceID,
			SlotID:        res.SlotID,
			Quantity:      res.Quantity,
			ExpiredAt:     now,
		}
		if err := s.bus.Publish(ctx, events.ReservationExpired, event); err != nil {
			logger.ErrorContext(ctx, "Failed to publish expiry event", "error", err, "reservation_id", res.ID)
		}
		expired++
	}

	logger.InfoContext(ctx, "Hold expiry sweep completed", "checked", len(holds), "expired", expired)
	return expired
}
