package reservations

import (
	"context"
	"fmt"
	"time"

	"github.com/tourbase/experience-bookings/internal/clock"
	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/pkg/events"
	"github.com/tourbase/experience-bookings/pkg/logger"
)

type ReservationRepo interface {
	Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error)
	CreateGuarded(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error)
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.ReservationStatus) error
	CountedBySlot(ctx context.Context, slotID int64) (int, error)
	CountedByRange(ctx context.Context, experienceID int64, tr domain.TimeRange) (int, error)
}

type SlotGetter interface {
	GetByID(ctx context.Context, id int64) (*domain.Slot, error)
}

// CreateInput is a booking attempt. Hold selects the request-to-book path:
// the reservation starts as pending_request and holds capacity until the
// expiry lapses or an explicit confirmation arrives.
type CreateInput struct {
	ExperienceID int64
	SlotID       *int64
	VirtualRange *domain.TimeRange
	OrderID      int64
	Quantity     int
	Participants map[string]int
	Addons       []domain.Addon
	Notes        string
	VoucherID    *int64
	Hold         bool
}

type Service struct {
	repo    ReservationRepo
	slots   SlotGetter
	bus     events.Publisher
	clock   clock.Clock
	holdTTL time.Duration
}

func NewService(repo ReservationRepo, slots SlotGetter, bus events.Publisher, clk clock.Clock, holdTTL time.Duration) *Service {
	return &Service{
		repo:    repo,
		slots:   slots,
		bus:     bus,
		clock:   clk,
		holdTTL: holdTTL,
	}
}

// Create registers a reservation against a slot's capacity. Bookings with
// a materialized slot run through the guarded insert; virtual-slot
// bookings are stored against the (experience, range) pair.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Reservation, error) {
	if in.Quantity <= 0 {
		return nil, domain.NewValidationError("quantity", domain.CodeInvalidCapacity,
			"quantity must be positive")
	}
	if in.SlotID == nil && in.VirtualRange == nil {
		return nil, domain.NewValidationError("slot", domain.CodeInvalidExperience,
			"a slot id or a time range is required")
	}

	res := &domain.Reservation{
		ExperienceID: in.ExperienceID,
		SlotID:       in.SlotID,
		VirtualRange: in.VirtualRange,
		OrderID:      in.OrderID,
		Quantity:     in.Quantity,
		Participants: in.Participants,
		Addons:       in.Addons,
		Notes:        in.Notes,
		VoucherID:    in.VoucherID,
		Status:       domain.ReservationConfirmed,
	}
	if in.Hold {
		expires := s.clock.Now().Add(s.holdTTL)
		res.Status = domain.ReservationPendingRequest
		res.HoldExpiresAt = &expires
	}

	var (
		created *domain.Reservation
		err     error
	)
	if in.SlotID != nil {
		created, err = s.repo.CreateGuarded(ctx, res)
	} else {
		created, err = s.repo.Create(ctx, res)
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.ReservationCreated, created)
	return created, nil
}

// UpdateStatus applies an explicit transition. Illegal transitions fail
// with ErrInvalidStatusTransition; nothing else ever changes a
// reservation's status.
func (s *Service) UpdateStatus(ctx context.Context, id int64, next domain.ReservationStatus) (*domain.Reservation, error) {
	res, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !res.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, res.Status, next)
	}

	if err := s.repo.UpdateStatus(ctx, id, res.Status, next); err != nil {
		return nil, err
	}

	updated, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch next {
	case domain.ReservationConfirmed:
		s.publish(ctx, events.ReservationConfirmed, updated)
	case domain.ReservationCancelled:
		s.publish(ctx, events.ReservationCancelled, updated)
	}
	return updated, nil
}

// Confirm is the external confirmation trigger (e.g. payment capture).
func (s *Service) Confirm(ctx context.Context, id int64) (*domain.Reservation, error) {
	return s.UpdateStatus(ctx, id, domain.ReservationConfirmed)
}

func (s *Service) Cancel(ctx context.Context, id int64) (*domain.Reservation, error) {
	return s.UpdateStatus(ctx, id, domain.ReservationCancelled)
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Reservation, error) {
	return s.repo.GetByID(ctx, id)
}

// CountedQuantity sums holding reservations for a slot or virtual slot.
func (s *Service) CountedQuantity(ctx context.Context, ref domain.SlotRef) (int, error) {
	if ref.IsVirtual() {
		return s.repo.CountedByRange(ctx, ref.ExperienceID, ref.Range)
	}
	return s.repo.CountedBySlot(ctx, ref.ID)
}

// Availability reports a materialized slot's total and remaining capacity.
// A zero total means unlimited; remaining is then -1.
func (s *Service) Availability(ctx context.Context, slotID int64) (total, remaining int, err error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		return 0, 0, err
	}
	counted, err := s.repo.CountedBySlot(ctx, slotID)
	if err != nil {
		return 0, 0, err
	}

	total = slot.Capacity.Total()
	if total == 0 {
		return 0, -1, nil
	}
	remaining = total - counted
	if remaining < 0 {
		remaining = 0
	}
	return total, remaining, nil
}

func (s *Service) publish(ctx context.Context, subject string, res *domain.Reservation) {
	event := events.ReservationEvent{
		ReservationID: res.ID,
		ExperienceID:  res.ExperienceID,
		SlotID:        res.SlotID,
		OrderID:       res.OrderID,
		Quantity:      res.Quantity,
		Status:        string(res.Status),
	}
	if err := s.bus.Publish(ctx, subject, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish reservation event",
			"error", err, "subject", subject, "reservation_id", res.ID)
	}
}
