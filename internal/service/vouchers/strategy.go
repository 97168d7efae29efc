package vouchers

import (
	"context"
	"time"

	"github.com/tourbase/experience-bookings/internal/domain"
)

// sendTolerance absorbs clock skew and processing delay when deciding
// whether a requested send time still counts as "now".
const sendTolerance = 60 * time.Second

// Strategy decides how a voucher's email reaches its recipient.
type Strategy interface {
	// Name identifies the strategy in logs.
	Name() string
	// ShouldDeliver reports whether this strategy applies to the voucher
	// as of now.
	ShouldDeliver(v *domain.Voucher, now time.Time) bool
	// Deliver executes or schedules the delivery.
	Deliver(ctx context.Context, v *domain.Voucher) error
}

// deliverableNow reports whether the requested send time counts as
// "now": unset, past, or within the tolerance window.
func deliverableNow(v *domain.Voucher, now time.Time) bool {
	return v.Delivery.SendAt == 0 || !v.SendTime().After(now.Add(sendTolerance))
}

// ImmediateStrategy sends the voucher email right away.
type ImmediateStrategy struct{ svc *Service }

func (s *ImmediateStrategy) Name() string { return "immediate" }

func (s *ImmediateStrategy) ShouldDeliver(v *domain.Voucher, now time.Time) bool {
	return deliverableNow(v, now)
}

func (s *ImmediateStrategy) Deliver(ctx context.Context, v *domain.Voucher) error {
	return s.svc.deliverNow(ctx, v)
}

// ScheduledStrategy defers the email to the voucher's requested send
// time through a durable one-shot job.
type ScheduledStrategy struct{ svc *Service }

func (s *ScheduledStrategy) Name() string { return "scheduled" }

func (s *ScheduledStrategy) ShouldDeliver(v *domain.Voucher, now time.Time) bool {
	return !deliverableNow(v, now)
}

func (s *ScheduledStrategy) Deliver(ctx context.Context, v *domain.Voucher) error {
	return s.svc.scheduleAt(ctx, v, v.SendTime())
}

// SelectStrategy picks scheduled delivery only when the requested send
// time lies more than the tolerance in the future; past, unset, and
// near-future send times deliver immediately.
func (s *Service) SelectStrategy(v *domain.Voucher) Strategy {
	scheduled := &ScheduledStrategy{svc: s}
	if scheduled.ShouldDeliver(v, s.clock.Now()) {
		return scheduled
	}
	return &ImmediateStrategy{svc: s}
}
