// Package vouchers runs gift-voucher email delivery: immediate sends,
// durable scheduled sends, and the defensive rechecks that keep an
// at-least-once job queue from ever double-delivering a voucher.
package vouchers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gohtml "html"
	"time"

	"github.com/tourbase/experience-bookings/internal/clock"
	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/platform/mailer"
	"github.com/tourbase/experience-bookings/internal/utils"
	"github.com/tourbase/experience-bookings/pkg/events"
	"github.com/tourbase/experience-bookings/pkg/logger"
)

// JobKind is the one-shot job kind handled by ProcessScheduledDelivery.
const JobKind = "voucher_delivery"

type VoucherRepo interface {
	Create(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error)
	GetByID(ctx context.Context, id int64) (*domain.Voucher, error)
	UpdateDelivery(ctx context.Context, id int64, delivery domain.VoucherDelivery) error
	UpdateStatus(ctx context.Context, id int64, status domain.VoucherStatus) error
}

type OneShotScheduler interface {
	ScheduleOneShot(ctx context.Context, key, kind string, payload []byte, runAt time.Time) error
	CancelOneShot(ctx context.Context, key string) error
}

type jobPayload struct {
	VoucherID int64 `json:"voucher_id"`
}

type Service struct {
	repo   VoucherRepo
	sched  OneShotScheduler
	mailer mailer.Service
	bus    events.Publisher
	clock  clock.Clock
}

func NewService(repo VoucherRepo, sched OneShotScheduler, m mailer.Service, bus events.Publisher, clk clock.Clock) *Service {
	return &Service{
		repo:   repo,
		sched:  sched,
		mailer: m,
		bus:    bus,
		clock:  clk,
	}
}

// ScheduleDelivery routes a voucher to the right delivery strategy based
// on its requested send time. Re-invoking it after a send-time change
// replaces any previously scheduled job.
func (s *Service) ScheduleDelivery(ctx context.Context, voucherID int64) error {
	v, err := s.repo.GetByID(ctx, voucherID)
	if err != nil {
		return err
	}
	if v.Sent() {
		logger.InfoContext(ctx, "Voucher already sent, nothing to schedule", "voucher_id", v.ID)
		return nil
	}
	if !v.IsActive() {
		return fmt.Errorf("voucher %d is %s, not deliverable", v.ID, v.Status)
	}

	strategy := s.SelectStrategy(v)
	logger.InfoContext(ctx, "Voucher delivery strategy selected",
		"voucher_id", v.ID, "strategy", strategy.Name(), "send_at", v.Delivery.SendAt)
	return strategy.Deliver(ctx, v)
}

// ClearSchedule drops any pending delivery job for the voucher. Safe to
// call when nothing is scheduled.
func (s *Service) ClearSchedule(ctx context.Context, voucherID int64) error {
	if err := s.sched.CancelOneShot(ctx, jobKey(voucherID)); err != nil {
		return err
	}

	v, err := s.repo.GetByID(ctx, voucherID)
	if err != nil {
		if errors.Is(err, domain.ErrVoucherNotFound) {
			return nil
		}
		return err
	}
	if v.Delivery.ScheduledAt == 0 {
		return nil
	}

	delivery := v.Delivery
	delivery.ScheduledAt = 0
	return s.repo.UpdateDelivery(ctx, v.ID, delivery)
}

// ProcessScheduledDelivery is the one-shot job handler. The queue is
// at-least-once, so every run re-validates the voucher against the
// database before any email leaves: the persisted sent_at, not job
// bookkeeping, decides whether delivery already happened.
func (s *Service) ProcessScheduledDelivery(ctx context.Context, payload []byte) error {
	var p jobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode voucher delivery payload: %w", err)
	}

	v, err := s.repo.GetByID(ctx, p.VoucherID)
	if err != nil {
		if errors.Is(err, domain.ErrVoucherNotFound) {
			logger.WarnContext(ctx, "Scheduled voucher vanished, dropping job", "voucher_id", p.VoucherID)
			return nil
		}
		return err
	}

	if v.Sent() {
		logger.InfoContext(ctx, "Voucher already sent, dropping stale job", "voucher_id", v.ID)
		return s.dropSchedule(ctx, v)
	}
	if !v.IsActive() {
		logger.InfoContext(ctx, "Voucher no longer active, dropping job",
			"voucher_id", v.ID, "status", string(v.Status))
		return s.dropSchedule(ctx, v)
	}

	// The send time may have moved since the job was queued.
	if !deliverableNow(v, s.clock.Now()) {
		logger.InfoContext(ctx, "Voucher send time moved, rescheduling", "voucher_id", v.ID, "send_at", v.Delivery.SendAt)
		return s.scheduleAt(ctx, v, v.SendTime())
	}

	return s.deliverNow(ctx, v)
}

func (s *Service) scheduleAt(ctx context.Context, v *domain.Voucher, runAt time.Time) error {
	payload, err := json.Marshal(jobPayload{VoucherID: v.ID})
	if err != nil {
		return fmt.Errorf("encode voucher delivery payload: %w", err)
	}
	if err := s.sched.ScheduleOneShot(ctx, jobKey(v.ID), JobKind, payload, runAt); err != nil {
		return err
	}

	delivery := v.Delivery
	delivery.ScheduledAt = s.clock.Now().Unix()
	if err := s.repo.UpdateDelivery(ctx, v.ID, delivery); err != nil {
		return err
	}
	v.Delivery = delivery

	event := events.VoucherDeliveryEvent{
		VoucherID: v.ID,
		Code:      v.Code,
		Recipient: v.RecipientEmail,
		SendAt:    v.Delivery.SendAt,
	}
	if err := s.bus.Publish(ctx, events.VoucherDeliveryScheduled, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish voucher scheduled event", "error", err, "voucher_id", v.ID)
	}
	return nil
}

func (s *Service) deliverNow(ctx context.Context, v *domain.Voucher) error {
	recipient := utils.NormalizeEmail(v.RecipientEmail)
	if !utils.IsValidEmail(recipient) {
		return fmt.Errorf("voucher %d has no deliverable recipient address", v.ID)
	}

	subject, text, html := composeEmail(v)
	if _, err := s.mailer.Send(recipient, v.RecipientName, subject, text, html); err != nil {
		return fmt.Errorf("send voucher %d: %w", v.ID, err)
	}

	delivery := v.Delivery
	delivery.SentAt = s.clock.Now().Unix()
	delivery.ScheduledAt = 0
	if err := s.repo.UpdateDelivery(ctx, v.ID, delivery); err != nil {
		// The email is out; the next run must still see it as sent.
		logger.ErrorContext(ctx, "Voucher sent but delivery record update failed", "error", err, "voucher_id", v.ID)
		return err
	}
	v.Delivery = delivery

	event := events.VoucherDeliveryEvent{
		VoucherID: v.ID,
		Code:      v.Code,
		Recipient: v.RecipientEmail,
		SentAt:    delivery.SentAt,
	}
	if err := s.bus.Publish(ctx, events.VoucherSent, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish voucher sent event", "error", err, "voucher_id", v.ID)
	}

	logger.InfoContext(ctx, "Voucher delivered", "voucher_id", v.ID, "recipient", v.RecipientEmail)
	return nil
}

// dropSchedule cancels any pending one-shot job for the voucher and
// clears the scheduled marker, so a dead schedule leaves no residue in
// either store.
func (s *Service) dropSchedule(ctx context.Context, v *domain.Voucher) error {
	if err := s.sched.CancelOneShot(ctx, jobKey(v.ID)); err != nil {
		return err
	}
	if v.Delivery.ScheduledAt == 0 {
		return nil
	}
	delivery := v.Delivery
	delivery.ScheduledAt = 0
	if err := s.repo.UpdateDelivery(ctx, v.ID, delivery); err != nil {
		return err
	}
	v.Delivery = delivery
	return nil
}

func composeEmail(v *domain.Voucher) (subject, text, html string) {
	subject = "Your gift voucher"
	if v.RecipientName != "" {
		subject = fmt.Sprintf("A gift voucher for %s", v.RecipientName)
	}

	amount := fmt.Sprintf("%.2f %s", float64(v.Value)/100, v.Currency)
	text = fmt.Sprintf("You received a gift voucher worth %s.\nCode: %s\n", amount, v.Code)
	if v.Message != "" {
		text += "\n" + v.Message + "\n"
	}

	html = fmt.Sprintf("<p>You received a gift voucher worth <strong>%s</strong>.</p><p>Code: <strong>%s</strong></p>", amount, v.Code)
	if v.Message != "" {
		html += fmt.Sprintf("<p>%s</p>", gohtml.EscapeString(v.Message))
	}
	return subject, text, html
}

func jobKey(voucherID int64) string {
	return fmt.Sprintf("voucher-delivery:%d", voucherID)
}
