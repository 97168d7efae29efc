package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/tourbase/experience-bookings/internal/clock"
)

// ---------- Mocks ----------

type memJobStore struct {
	byKey  map[string]*Job
	nextID int64
}

func newMemJobStore() *memJobStore {
	return &memJobStore{byKey: make(map[string]*Job), nextID: 1}
}

func (m *memJobStore) Upsert(_ context.Context, key, kind string, payload []byte, runAt time.Time) (*Job, error) {
	if j, ok := m.byKey[key]; ok {
		j.Kind = kind
		j.Payload = payload
		j.RunAt = runAt
		j.Status = JobScheduled
		j.LastError = nil
		return j, nil
	}
	j := &Job{ID: m.nextID, Key: key, Kind: kind, Payload: payload, RunAt: runAt, Status: JobScheduled}
	m.nextID++
	m.byKey[key] = j
	return j, nil
}

func (m *memJobStore) GetByKey(_ context.Context, key string) (*Job, error) {
	j, ok := m.byKey[key]
	if !ok {
		return nil, ErrJobNotFound
	}
	return j, nil
}

func (m *memJobStore) DeleteByKey(_ context.Context, key string) error {
	delete(m.byKey, key)
	return nil
}

func (m *memJobStore) Due(_ context.Context, now time.Time, _ int) ([]Job, error) {
	var out []Job
	for _, j := range m.byKey {
		if j.Status == JobScheduled && !j.RunAt.After(now) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobStore) MarkDone(_ context.Context, id int64) error {
	return m.setStatus(id, JobDone, nil)
}

func (m *memJobStore) MarkFailed(_ context.Context, id int64, reason string) error {
	return m.setStatus(id, JobFailed, &reason)
}

func (m *memJobStore) setStatus(id int64, status JobStatus, lastErr *string) error {
	for _, j := range m.byKey {
		if j.ID == id {
			j.Status = status
			j.LastError = lastErr
			return nil
		}
	}
	return ErrJobNotFound
}

// ---------- Tests ----------

var schedNow = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

func TestScheduleOneShot(t *testing.T) {
	ctx := context.Background()
	store := newMemJobStore()
	s := New(store, clock.NewFixed(schedNow), time.Minute)

	runAt := schedNow.Add(time.Hour)
	if err := s.ScheduleOneShot(ctx, "voucher-delivery:1", "voucher_delivery", []byte(`{}`), runAt); err != nil {
		t.Fatalf("ScheduleOneShot: %v", err)
	}

	t.Run("same key replaces instead of duplicating", func(t *testing.T) {
		later := schedNow.Add(2 * time.Hour)
		if err := s.ScheduleOneShot(ctx, "voucher-delivery:1", "voucher_delivery", []byte(`{}`), later); err != nil {
			t.Fatal(err)
		}
		if len(store.byKey) != 1 {
			t.Fatalf("jobs = %d, want 1", len(store.byKey))
		}
		j, err := s.GetOneShot(ctx, "voucher-delivery:1")
		if err != nil {
			t.Fatal(err)
		}
		if !j.RunAt.Equal(later) {
			t.Errorf("run at %v, want %v", j.RunAt, later)
		}
	})

	t.Run("cancel removes the job", func(t *testing.T) {
		if err := s.CancelOneShot(ctx, "voucher-delivery:1"); err != nil {
			t.Fatalf("CancelOneShot: %v", err)
		}
		if _, err := s.GetOneShot(ctx, "voucher-delivery:1"); !errors.Is(err, ErrJobNotFound) {
			t.Errorf("err = %v, want ErrJobNotFound", err)
		}
	})

	t.Run("cancel of unknown key is a no-op", func(t *testing.T) {
		if err := s.CancelOneShot(ctx, "voucher-delivery:404"); err != nil {
			t.Errorf("CancelOneShot: %v", err)
		}
	})
}

func TestPollDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("due jobs run and are marked done", func(t *testing.T) {
		store := newMemJobStore()
		s := New(store, clock.NewFixed(schedNow), time.Minute)

		handled := 0
		s.RegisterHandler("voucher_delivery", func(_ context.Context, _ []byte) error {
			handled++
			return nil
		})

		if err := s.ScheduleOneShot(ctx, "due", "voucher_delivery", nil, schedNow.Add(-time.Minute)); err != nil {
			t.Fatal(err)
		}
		if err := s.ScheduleOneShot(ctx, "future", "voucher_delivery", nil, schedNow.Add(time.Hour)); err != nil {
			t.Fatal(err)
		}

		s.poll(ctx)

		if handled != 1 {
			t.Errorf("handled = %d, want 1", handled)
		}
		if store.byKey["due"].Status != JobDone {
			t.Errorf("due status = %s, want done", store.byKey["due"].Status)
		}
		if store.byKey["future"].Status != JobScheduled {
			t.Errorf("future status = %s, want scheduled", store.byKey["future"].Status)
		}
	})

	t.Run("handler failure marks the job failed", func(t *testing.T) {
		store := newMemJobStore()
		s := New(store, clock.NewFixed(schedNow), time.Minute)
		s.RegisterHandler("voucher_delivery", func(_ context.Context, _ []byte) error {
			return fmt.Errorf("smtp down")
		})

		if err := s.ScheduleOneShot(ctx, "due", "voucher_delivery", nil, schedNow.Add(-time.Minute)); err != nil {
			t.Fatal(err)
		}
		s.poll(ctx)

		j := store.byKey["due"]
		if j.Status != JobFailed {
			t.Fatalf("status = %s, want failed", j.Status)
		}
		if j.LastError == nil || *j.LastError != "smtp down" {
			t.Errorf("last error = %v", j.LastError)
		}
	})

	t.Run("one failure does not abort the batch", func(t *testing.T) {
		store := newMemJobStore()
		s := New(store, clock.NewFixed(schedNow), time.Minute)
		s.RegisterHandler("flaky", func(_ context.Context, payload []byte) error {
			if string(payload) == "boom" {
				return fmt.Errorf("boom")
			}
			return nil
		})

		if err := s.ScheduleOneShot(ctx, "a", "flaky", []byte("boom"), schedNow.Add(-time.Minute)); err != nil {
			t.Fatal(err)
		}
		if err := s.ScheduleOneShot(ctx, "b", "flaky", []byte("ok"), schedNow.Add(-time.Minute)); err != nil {
			t.Fatal(err)
		}
		s.poll(ctx)

		if store.byKey["a"].Status != JobFailed {
			t.Errorf("a status = %s, want failed", store.byKey["a"].Status)
		}
		if store.byKey["b"].Status != JobDone {
			t.Errorf("b status = %s, want done", store.byKey["b"].Status)
		}
	})

	t.Run("unknown kind is marked failed", func(t *testing.T) {
		store := newMemJobStore()
		s := New(store, clock.NewFixed(schedNow), time.Minute)

		if err := s.ScheduleOneShot(ctx, "orphan", "unknown_kind", nil, schedNow.Add(-time.Minute)); err != nil {
			t.Fatal(err)
		}
		s.poll(ctx)

		if store.byKey["orphan"].Status != JobFailed {
			t.Errorf("status = %s, want failed", store.byKey["orphan"].Status)
		}
	})
}

func TestEnsureRecurring(t *testing.T) {
	ctx := context.Background()

	t.Run("re-registration with same period is idempotent", func(t *testing.T) {
		s := New(newMemJobStore(), clock.NewFixed(schedNow), time.Minute)

		s.EnsureRecurring(ctx, "sweep", time.Hour, func(context.Context) {})
		first := s.recurring["sweep"].id
		s.EnsureRecurring(ctx, "sweep", time.Hour, func(context.Context) {})

		if len(s.recurring) != 1 {
			t.Fatalf("recurring = %d, want 1", len(s.recurring))
		}
		if s.recurring["sweep"].id != first {
			t.Error("entry was replaced despite identical registration")
		}
	})

	t.Run("changed period replaces the entry and fires immediately", func(t *testing.T) {
		s := New(newMemJobStore(), clock.NewFixed(schedNow), time.Minute)

		fired := make(chan struct{}, 1)
		s.EnsureRecurring(ctx, "sweep", time.Hour, func(context.Context) {})
		s.EnsureRecurring(ctx, "sweep", 30*time.Minute, func(context.Context) {
			fired <- struct{}{}
		})

		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("replacement did not fire immediately")
		}
		if got := s.recurring["sweep"].every; got != 30*time.Minute {
			t.Errorf("every = %v, want 30m", got)
		}
	})
}

func TestDriftExceeded(t *testing.T) {
	every := time.Hour
	tests := []struct {
		name string
		next time.Time
		want bool
	}{
		{"zero next never drifts", time.Time{}, false},
		{"next within one period", schedNow.Add(30 * time.Minute), false},
		{"next at exactly two periods", schedNow.Add(2 * time.Hour), false},
		{"next past two periods", schedNow.Add(2*time.Hour + time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := driftExceeded(tt.next, schedNow, every); got != tt.want {
				t.Errorf("driftExceeded(%v) = %v, want %v", tt.next, got, tt.want)
			}
		})
	}
}

func TestPollHealsRecurring(t *testing.T) {
	ctx := context.Background()
	s := New(newMemJobStore(), clock.NewFixed(schedNow), time.Minute)

	fired := make(chan struct{}, 1)
	s.EnsureRecurring(ctx, "sweep", time.Hour, func(context.Context) {
		fired <- struct{}{}
	})
	old := s.recurring["sweep"].id

	// Simulate the cron entry vanishing out from under the registration.
	s.cron.Remove(old)

	s.poll(ctx)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("heal did not fire the replaced entry")
	}
	entry, ok := s.recurring["sweep"]
	if !ok {
		t.Fatal("entry missing after heal")
	}
	if entry.id == old {
		t.Error("entry was not re-registered")
	}

	t.Run("healthy entry survives the next poll untouched", func(t *testing.T) {
		current := s.recurring["sweep"].id
		s.poll(ctx)
		if s.recurring["sweep"].id != current {
			t.Error("healthy entry was replaced")
		}
	})
}
