package vouchers_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tourbase/experience-bookings/internal/clock"
	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/service/vouchers"
)

// ---------- Mocks ----------

type mockVoucherRepo struct {
	byID   map[int64]*domain.Voucher
	nextID int64
}

func newMockVoucherRepo(vs ...*domain.Voucher) *mockVoucherRepo {
	m := &mockVoucherRepo{byID: make(map[int64]*domain.Voucher), nextID: 100}
	for _, v := range vs {
		m.byID[v.ID] = v
	}
	return m
}

func (m *mockVoucherRepo) Create(_ context.Context, v *domain.Voucher) (*domain.Voucher, error) {
	cp := *v
	cp.ID = m.nextID
	m.nextID++
	m.byID[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *mockVoucherRepo) UpdateStatus(_ context.Context, id int64, status domain.VoucherStatus) error {
	v, ok := m.byID[id]
	if !ok {
		return domain.ErrVoucherNotFound
	}
	v.Status = status
	return nil
}

func (m *mockVoucherRepo) GetByID(_ context.Context, id int64) (*domain.Voucher, error) {
	v, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrVoucherNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *mockVoucherRepo) UpdateDelivery(_ context.Context, id int64, delivery domain.VoucherDelivery) error {
	v, ok := m.byID[id]
	if !ok {
		return domain.ErrVoucherNotFound
	}
	v.Delivery = delivery
	return nil
}

type mockScheduler struct {
	jobs map[string]time.Time
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{jobs: make(map[string]time.Time)}
}

func (m *mockScheduler) ScheduleOneShot(_ context.Context, key, kind string, _ []byte, runAt time.Time) error {
	m.jobs[key] = runAt
	return nil
}

func (m *mockScheduler) CancelOneShot(_ context.Context, key string) error {
	delete(m.jobs, key)
	return nil
}

type mockMailer struct {
	sends    int
	lastTo   string
	lastText string
}

func (m *mockMailer) Send(toEmail, toName, subject, text, html string) (string, error) {
	m.sends++
	m.lastTo = toEmail
	m.lastText = text
	return "mock-id", nil
}

type mockBus struct {
	subjects []string
}

func (m *mockBus) Publish(_ context.Context, subject string, _ interface{}) error {
	m.subjects = append(m.subjects, subject)
	return nil
}

func (m *mockBus) Close() error { return nil }

// ---------- Helpers ----------

var deliveryNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func activeVoucher(id int64, sendAt int64) *domain.Voucher {
	return &domain.Voucher{
		ID:             id,
		Code:           "GIFT-2026",
		Value:          5000,
		Currency:       "EUR",
		ExperienceID:   7,
		RecipientName:  "Ada",
		RecipientEmail: "ada@example.com",
		Status:         domain.VoucherActive,
		Delivery:       domain.VoucherDelivery{SendAt: sendAt},
	}
}

type fixture struct {
	repo   *mockVoucherRepo
	sched  *mockScheduler
	mailer *mockMailer
	bus    *mockBus
	svc    *vouchers.Service
}

func newFixture(vs ...*domain.Voucher) *fixture {
	f := &fixture{
		repo:   newMockVoucherRepo(vs...),
		sched:  newMockScheduler(),
		mailer: &mockMailer{},
		bus:    &mockBus{},
	}
	f.svc = vouchers.NewService(f.repo, f.sched, f.mailer, f.bus, clock.NewFixed(deliveryNow))
	return f
}

func payloadFor(t *testing.T, id int64) []byte {
	t.Helper()
	b, err := json.Marshal(map[string]int64{"voucher_id": id})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// ---------- Tests ----------

func TestScheduleDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("unset send time delivers immediately", func(t *testing.T) {
		f := newFixture(activeVoucher(1, 0))

		if err := f.svc.ScheduleDelivery(ctx, 1); err != nil {
			t.Fatalf("ScheduleDelivery: %v", err)
		}
		if f.mailer.sends != 1 {
			t.Errorf("sends = %d, want 1", f.mailer.sends)
		}
		if len(f.sched.jobs) != 0 {
			t.Errorf("jobs = %d, want 0", len(f.sched.jobs))
		}
		if f.repo.byID[1].Delivery.SentAt != deliveryNow.Unix() {
			t.Errorf("sent_at = %d, want %d", f.repo.byID[1].Delivery.SentAt, deliveryNow.Unix())
		}
	})

	t.Run("past send time delivers immediately", func(t *testing.T) {
		f := newFixture(activeVoucher(1, deliveryNow.Add(-time.Hour).Unix()))

		if err := f.svc.ScheduleDelivery(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if f.mailer.sends != 1 {
			t.Errorf("sends = %d, want 1", f.mailer.sends)
		}
	})

	t.Run("send time within tolerance delivers immediately", func(t *testing.T) {
		f := newFixture(activeVoucher(1, deliveryNow.Add(30*time.Second).Unix()))

		if err := f.svc.ScheduleDelivery(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if f.mailer.sends != 1 {
			t.Errorf("sends = %d, want 1", f.mailer.sends)
		}
	})

	t.Run("future send time schedules a job", func(t *testing.T) {
		sendAt := deliveryNow.Add(48 * time.Hour)
		f := newFixture(activeVoucher(1, sendAt.Unix()))

		if err := f.svc.ScheduleDelivery(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if f.mailer.sends != 0 {
			t.Errorf("sends = %d, want 0", f.mailer.sends)
		}
		runAt, ok := f.sched.jobs["voucher-delivery:1"]
		if !ok {
			t.Fatal("no job scheduled")
		}
		if !runAt.Equal(sendAt) {
			t.Errorf("run at %v, want %v", runAt, sendAt)
		}
		if f.repo.byID[1].Delivery.ScheduledAt != deliveryNow.Unix() {
			t.Errorf("scheduled_at = %d", f.repo.byID[1].Delivery.ScheduledAt)
		}
	})

	t.Run("already sent voucher is left alone", func(t *testing.T) {
		v := activeVoucher(1, 0)
		v.Delivery.SentAt = deliveryNow.Add(-time.Hour).Unix()
		f := newFixture(v)

		if err := f.svc.ScheduleDelivery(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if f.mailer.sends != 0 {
			t.Errorf("sends = %d, want 0", f.mailer.sends)
		}
	})

	t.Run("inactive voucher is rejected", func(t *testing.T) {
		v := activeVoucher(1, 0)
		v.Status = domain.VoucherCancelled
		f := newFixture(v)

		if err := f.svc.ScheduleDelivery(ctx, 1); err == nil {
			t.Error("expected error for cancelled voucher")
		}
		if f.mailer.sends != 0 {
			t.Errorf("sends = %d, want 0", f.mailer.sends)
		}
	})
}

func TestProcessScheduledDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("due job sends exactly once", func(t *testing.T) {
		f := newFixture(activeVoucher(1, deliveryNow.Add(-time.Minute).Unix()))
		payload := payloadFor(t, 1)

		if err := f.svc.ProcessScheduledDelivery(ctx, payload); err != nil {
			t.Fatalf("ProcessScheduledDelivery: %v", err)
		}
		// The job queue is at-least-once; a redelivered job must not
		// produce a second email.
		if err := f.svc.ProcessScheduledDelivery(ctx, payload); err != nil {
			t.Fatalf("second ProcessScheduledDelivery: %v", err)
		}

		if f.mailer.sends != 1 {
			t.Errorf("sends = %d, want exactly 1", f.mailer.sends)
		}
		if f.repo.byID[1].Delivery.SentAt == 0 {
			t.Error("sent_at not persisted")
		}
	})

	t.Run("vanished voucher drops the job", func(t *testing.T) {
		f := newFixture()
		if err := f.svc.ProcessScheduledDelivery(ctx, payloadFor(t, 99)); err != nil {
			t.Fatalf("ProcessScheduledDelivery: %v", err)
		}
		if f.mailer.sends != 0 {
			t.Errorf("sends = %d, want 0", f.mailer.sends)
		}
	})

	t.Run("deactivated voucher is not sent", func(t *testing.T) {
		v := activeVoucher(1, deliveryNow.Add(-time.Minute).Unix())
		v.Status = domain.VoucherRefunded
		f := newFixture(v)

		if err := f.svc.ProcessScheduledDelivery(ctx, payloadFor(t, 1)); err != nil {
			t.Fatal(err)
		}
		if f.mailer.sends != 0 {
			t.Errorf("sends = %d, want 0", f.mailer.sends)
		}
	})

	t.Run("stale job for a sent voucher is cancelled outright", func(t *testing.T) {
		v := activeVoucher(1, deliveryNow.Add(-time.Minute).Unix())
		v.Delivery.SentAt = deliveryNow.Add(-time.Hour).Unix()
		v.Delivery.ScheduledAt = deliveryNow.Add(-2 * time.Hour).Unix()
		f := newFixture(v)
		f.sched.jobs["voucher-delivery:1"] = deliveryNow

		if err := f.svc.ProcessScheduledDelivery(ctx, payloadFor(t, 1)); err != nil {
			t.Fatal(err)
		}
		if _, ok := f.sched.jobs["voucher-delivery:1"]; ok {
			t.Error("stale job still scheduled")
		}
		if f.repo.byID[1].Delivery.ScheduledAt != 0 {
			t.Errorf("scheduled_at = %d, want 0", f.repo.byID[1].Delivery.ScheduledAt)
		}
	})

	t.Run("stale job for an inactive voucher is cancelled outright", func(t *testing.T) {
		v := activeVoucher(1, deliveryNow.Add(-time.Minute).Unix())
		v.Status = domain.VoucherCancelled
		v.Delivery.ScheduledAt = deliveryNow.Add(-2 * time.Hour).Unix()
		f := newFixture(v)
		f.sched.jobs["voucher-delivery:1"] = deliveryNow

		if err := f.svc.ProcessScheduledDelivery(ctx, payloadFor(t, 1)); err != nil {
			t.Fatal(err)
		}
		if _, ok := f.sched.jobs["voucher-delivery:1"]; ok {
			t.Error("stale job still scheduled")
		}
	})

	t.Run("moved send time reschedules instead of sending", func(t *testing.T) {
		newSendAt := deliveryNow.Add(24 * time.Hour)
		f := newFixture(activeVoucher(1, newSendAt.Unix()))

		if err := f.svc.ProcessScheduledDelivery(ctx, payloadFor(t, 1)); err != nil {
			t.Fatal(err)
		}
		if f.mailer.sends != 0 {
			t.Errorf("sends = %d, want 0", f.mailer.sends)
		}
		runAt, ok := f.sched.jobs["voucher-delivery:1"]
		if !ok {
			t.Fatal("job not rescheduled")
		}
		if !runAt.Equal(newSendAt) {
			t.Errorf("run at %v, want %v", runAt, newSendAt)
		}
	})

	t.Run("email contains code and message", func(t *testing.T) {
		v := activeVoucher(1, 0)
		v.Message = "Happy birthday!"
		f := newFixture(v)

		if err := f.svc.ProcessScheduledDelivery(ctx, payloadFor(t, 1)); err != nil {
			t.Fatal(err)
		}
		if f.mailer.lastTo != "ada@example.com" {
			t.Errorf("to = %q", f.mailer.lastTo)
		}
		if !strings.Contains(f.mailer.lastText, "GIFT-2026") {
			t.Errorf("text missing code: %q", f.mailer.lastText)
		}
		if !strings.Contains(f.mailer.lastText, "Happy birthday!") {
			t.Errorf("text missing message: %q", f.mailer.lastText)
		}
	})

	t.Run("garbage payload fails", func(t *testing.T) {
		f := newFixture()
		if err := f.svc.ProcessScheduledDelivery(ctx, []byte("{broken")); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestClearSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("clears job and scheduled marker", func(t *testing.T) {
		f := newFixture(activeVoucher(1, deliveryNow.Add(48*time.Hour).Unix()))
		if err := f.svc.ScheduleDelivery(ctx, 1); err != nil {
			t.Fatal(err)
		}

		if err := f.svc.ClearSchedule(ctx, 1); err != nil {
			t.Fatalf("ClearSchedule: %v", err)
		}
		if len(f.sched.jobs) != 0 {
			t.Errorf("jobs = %d, want 0", len(f.sched.jobs))
		}
		if f.repo.byID[1].Delivery.ScheduledAt != 0 {
			t.Errorf("scheduled_at = %d, want 0", f.repo.byID[1].Delivery.ScheduledAt)
		}
	})

	t.Run("clearing an unscheduled voucher is a no-op", func(t *testing.T) {
		f := newFixture(activeVoucher(1, 0))
		if err := f.svc.ClearSchedule(ctx, 1); err != nil {
			t.Fatalf("ClearSchedule: %v", err)
		}
	})

	t.Run("clearing a missing voucher is a no-op", func(t *testing.T) {
		f := newFixture()
		if err := f.svc.ClearSchedule(ctx, 42); err != nil {
			t.Fatalf("ClearSchedule: %v", err)
		}
	})
}

func TestSelectStrategy(t *testing.T) {
	f := newFixture()

	cases := []struct {
		name   string
		sendAt int64
		want   string
	}{
		{"unset", 0, "immediate"},
		{"past", deliveryNow.Add(-time.Hour).Unix(), "immediate"},
		{"just under tolerance", deliveryNow.Add(59 * time.Second).Unix(), "immediate"},
		{"beyond tolerance", deliveryNow.Add(2 * time.Minute).Unix(), "scheduled"},
		{"far future", deliveryNow.Add(30 * 24 * time.Hour).Unix(), "scheduled"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := activeVoucher(1, tc.sendAt)
			strategy := f.svc.SelectStrategy(v)
			if got := strategy.Name(); got != tc.want {
				t.Errorf("strategy = %s, want %s", got, tc.want)
			}
			// The selected strategy must agree that it applies.
			if !strategy.ShouldDeliver(v, deliveryNow) {
				t.Errorf("%s strategy disowns the voucher it was selected for", strategy.Name())
			}
		})
	}
}

func TestCreateVoucher(t *testing.T) {
	ctx := context.Background()

	t.Run("valid input registers an active voucher", func(t *testing.T) {
		f := newFixture()
		sendAt := deliveryNow.Add(48 * time.Hour).Unix()

		created, err := f.svc.Create(ctx, vouchers.CreateInput{
			Code:           "GIFT-2026",
			Value:          5000,
			Currency:       "EUR",
			ExperienceID:   7,
			RecipientName:  "Ada",
			RecipientEmail: " Ada@Example.com ",
			SendAt:         sendAt,
		})
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if created.ID == 0 {
			t.Error("no id assigned")
		}
		if created.Status != domain.VoucherActive {
			t.Errorf("status = %s, want active", created.Status)
		}
		if created.RecipientEmail != "ada@example.com" {
			t.Errorf("recipient = %q, want normalized address", created.RecipientEmail)
		}
		if created.Delivery.SendAt != sendAt {
			t.Errorf("send_at = %d, want %d", created.Delivery.SendAt, sendAt)
		}
		if _, ok := f.repo.byID[created.ID]; !ok {
			t.Error("voucher not persisted")
		}
	})

	t.Run("rejects bad input", func(t *testing.T) {
		valid := vouchers.CreateInput{Code: "GIFT", Value: 100, RecipientEmail: "a@b.com"}
		cases := []struct {
			name   string
			mutate func(*vouchers.CreateInput)
			field  string
		}{
			{"missing code", func(in *vouchers.CreateInput) { in.Code = "" }, "code"},
			{"zero value", func(in *vouchers.CreateInput) { in.Value = 0 }, "value"},
			{"negative value", func(in *vouchers.CreateInput) { in.Value = -1 }, "value"},
			{"bad email", func(in *vouchers.CreateInput) { in.RecipientEmail = "not-an-address" }, "recipient_email"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				f := newFixture()
				in := valid
				tc.mutate(&in)

				_, err := f.svc.Create(ctx, in)
				verr, ok := domain.AsValidationError(err)
				if !ok {
					t.Fatalf("err = %v, want validation error", err)
				}
				if verr.Field != tc.field {
					t.Errorf("field = %q, want %q", verr.Field, tc.field)
				}
			})
		}
	})
}

func TestUpdateVoucherStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("cancelling drops the pending schedule", func(t *testing.T) {
		f := newFixture(activeVoucher(1, deliveryNow.Add(48*time.Hour).Unix()))
		if err := f.svc.ScheduleDelivery(ctx, 1); err != nil {
			t.Fatal(err)
		}
		if _, ok := f.sched.jobs["voucher-delivery:1"]; !ok {
			t.Fatal("no job scheduled")
		}

		v, err := f.svc.UpdateStatus(ctx, 1, "cancelled")
		if err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if v.Status != domain.VoucherCancelled {
			t.Errorf("status = %s, want cancelled", v.Status)
		}
		if _, ok := f.sched.jobs["voucher-delivery:1"]; ok {
			t.Error("delivery job survived the cancellation")
		}
		if f.repo.byID[1].Delivery.ScheduledAt != 0 {
			t.Errorf("scheduled_at = %d, want 0", f.repo.byID[1].Delivery.ScheduledAt)
		}
	})

	t.Run("redeeming a sent voucher keeps its delivery record", func(t *testing.T) {
		v := activeVoucher(1, 0)
		v.Delivery.SentAt = deliveryNow.Add(-time.Hour).Unix()
		f := newFixture(v)

		updated, err := f.svc.UpdateStatus(ctx, 1, "redeemed")
		if err != nil {
			t.Fatal(err)
		}
		if updated.Status != domain.VoucherRedeemed {
			t.Errorf("status = %s, want redeemed", updated.Status)
		}
		if f.repo.byID[1].Delivery.SentAt == 0 {
			t.Error("sent_at was cleared")
		}
	})

	t.Run("unknown status is rejected", func(t *testing.T) {
		f := newFixture(activeVoucher(1, 0))
		if _, err := f.svc.UpdateStatus(ctx, 1, "exploded"); err == nil {
			t.Error("expected error for unknown status")
		}
	})

	t.Run("missing voucher returns not found", func(t *testing.T) {
		f := newFixture()
		if _, err := f.svc.UpdateStatus(ctx, 42, "cancelled"); err == nil {
			t.Error("expected error for missing voucher")
		}
	})
}
