// Package scheduler is the scheduling facility for the booking core:
// durable one-shot jobs keyed by a logical id, plus recurring in-process
// entries with self-healing registration. One-shot jobs live in Postgres
// and survive restarts; a cron entry polls them on a fixed cadence.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tourbase/experience-bookings/internal/clock"
	"github.com/tourbase/experience-bookings/pkg/logger"
)

// Handler runs a due one-shot job of a registered kind.
type Handler func(ctx context.Context, payload []byte) error

type recurringEntry struct {
	id    cron.EntryID
	every time.Duration
	fn    func(ctx context.Context)
}

// driftExceeded reports whether a cron entry's next run has drifted more
// than two periods past now. A zero next time (entry not yet started)
// never counts as drift.
func driftExceeded(next, now time.Time, every time.Duration) bool {
	return !next.IsZero() && next.Sub(now) > 2*every
}

type Scheduler struct {
	store    JobStore
	clock    clock.Clock
	cron     *cron.Cron
	interval time.Duration

	mu        sync.Mutex
	handlers  map[string]Handler
	recurring map[string]recurringEntry
}

func New(store JobStore, clk clock.Clock, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Scheduler{
		store:     store,
		clock:     clk,
		cron:      cron.New(),
		interval:  pollInterval,
		handlers:  make(map[string]Handler),
		recurring: make(map[string]recurringEntry),
	}
}

// RegisterHandler binds a job kind to its handler. Must be called before
// Start for kinds that may already be due.
func (s *Scheduler) RegisterHandler(kind string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

// ScheduleOneShot schedules (or reschedules) the job identified by key.
// The upsert keyed by the logical id guarantees a voucher or reservation
// never accumulates duplicate jobs.
func (s *Scheduler) ScheduleOneShot(ctx context.Context, key, kind string, payload []byte, runAt time.Time) error {
	if _, err := s.store.Upsert(ctx, key, kind, payload, runAt.UTC()); err != nil {
		return fmt.Errorf("schedule %s: %w", key, err)
	}
	logger.DebugContext(ctx, "One-shot job scheduled", "key", key, "kind", kind, "run_at", runAt.UTC())
	return nil
}

// GetOneShot returns the scheduled job for key, or ErrJobNotFound.
func (s *Scheduler) GetOneShot(ctx context.Context, key string) (*Job, error) {
	return s.store.GetByKey(ctx, key)
}

// CancelOneShot removes the job for key. Safe to call when none exists.
func (s *Scheduler) CancelOneShot(ctx context.Context, key string) error {
	if err := s.store.DeleteByKey(ctx, key); err != nil {
		return fmt.Errorf("cancel %s: %w", key, err)
	}
	return nil
}

// EnsureRecurring registers fn to run every period. Re-registration is
// idempotent; when the existing entry is gone or its next run has drifted
// more than two periods from now, the entry is replaced and fn fires
// immediately so a stalled schedule cannot silently stop.
func (s *Scheduler) EnsureRecurring(ctx context.Context, name string, every time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.recurring[name]; ok {
		ce := s.cron.Entry(entry.id)
		drifted := driftExceeded(ce.Next, s.clock.Now(), entry.every)
		if ce.Valid() && entry.every == every && !drifted {
			return
		}
		s.cron.Remove(entry.id)
		delete(s.recurring, name)
		logger.WarnContext(ctx, "Recurring job re-registered", "name", name, "drifted", drifted)
		go fn(context.WithValue(context.Background(), logger.JobKey, name))
	}

	id := s.cron.Schedule(cron.Every(every), cron.FuncJob(func() {
		fn(context.WithValue(context.Background(), logger.JobKey, name))
	}))
	s.recurring[name] = recurringEntry{id: id, every: every, fn: fn}
	logger.InfoContext(ctx, "Recurring job registered", "name", name, "every", every.String())
}

// healRecurring replays every known registration through EnsureRecurring
// so a vanished or drifted entry is caught on the next poll, not only at
// boot.
func (s *Scheduler) healRecurring(ctx context.Context) {
	s.mu.Lock()
	entries := make(map[string]recurringEntry, len(s.recurring))
	for name, e := range s.recurring {
		entries[name] = e
	}
	s.mu.Unlock()

	for name, e := range entries {
		s.EnsureRecurring(ctx, name, e.every, e.fn)
	}
}

// Start launches the cron runner and the one-shot poller, then blocks
// until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.EnsureRecurring(ctx, "one-shot-poller", s.interval, s.poll)
	s.cron.Start()

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return ctx.Err()
}

// poll dispatches due one-shot jobs and re-checks recurring entries. One
// job's failure never aborts the batch; failures are recorded on the row
// and logged.
func (s *Scheduler) poll(ctx context.Context) {
	s.healRecurring(ctx)

	now := s.clock.Now()
	jobs, err := s.store.Due(ctx, now, 0)
	if err != nil {
		logger.ErrorContext(ctx, "Due jobs query failed", "error", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	dispatched := 0
	for _, job := range jobs {
		s.mu.Lock()
		handler, ok := s.handlers[job.Kind]
		s.mu.Unlock()
		if !ok {
			logger.WarnContext(ctx, "No handler for job kind", "kind", job.Kind, "key", job.Key)
			if err := s.store.MarkFailed(ctx, job.ID, "no handler registered"); err != nil {
				logger.ErrorContext(ctx, "Failed to mark job failed", "error", err, "key", job.Key)
			}
			continue
		}

		if err := handler(ctx, job.Payload); err != nil {
			logger.ErrorContext(ctx, "Job handler failed", "error", err, "kind", job.Kind, "key", job.Key)
			if err := s.store.MarkFailed(ctx, job.ID, err.Error()); err != nil {
				logger.ErrorContext(ctx, "Failed to mark job failed", "error", err, "key", job.Key)
			}
			continue
		}

		if err := s.store.MarkDone(ctx, job.ID); err != nil {
			logger.ErrorContext(ctx, "Failed to mark job done", "error", err, "key", job.Key)
		}
		dispatched++
	}

	logger.InfoContext(ctx, "One-shot poll completed", "due", len(jobs), "dispatched", dispatched)
}
