package slots

import (
	"context"
	"errors"
	"fmt"

	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/integrations/experienceconfig"
	"github.com/tourbase/experience-bookings/internal/validation"
	"github.com/tourbase/experience-bookings/pkg/events"
	"github.com/tourbase/experience-bookings/pkg/logger"
)

type SlotRepo interface {
	Create(ctx context.Context, slot *domain.Slot) (*domain.Slot, error)
	GetByID(ctx context.Context, id int64) (*domain.Slot, error)
	FindByExperienceAndRange(ctx context.Context, experienceID int64, tr domain.TimeRange) (*domain.Slot, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SlotStatus) error
	UpdateCapacity(ctx context.Context, id int64, capacity domain.SlotCapacity) error
}

type AvailabilityProvider interface {
	GetAvailability(ctx context.Context, experienceID int64) (*experienceconfig.Availability, error)
}

// Factory owns slot creation: validation, default-capacity resolution from
// the experience's availability settings, and persistence. Callers never
// insert slots behind its back.
type Factory struct {
	repo   SlotRepo
	config AvailabilityProvider
	bus    events.Publisher
}

func NewFactory(repo SlotRepo, config AvailabilityProvider, bus events.Publisher) *Factory {
	return &Factory{
		repo:   repo,
		config: config,
		bus:    bus,
	}
}

// Create validates raw input, merges experience defaults when no capacity
// was supplied, and persists the slot. Validation failures propagate
// unchanged; anything unexpected surfaces as ErrSlotCreateFailed so no raw
// low-level error crosses the booking API surface.
func (f *Factory) Create(ctx context.Context, in validation.SlotInput) (*domain.Slot, error) {
	if err := validation.ValidateSlot(in); err != nil {
		return nil, err
	}

	if in.CapacityTotal == 0 && in.ExperienceID > 0 {
		f.mergeDefaults(ctx, &in)
	}

	tr, err := domain.ParseTimeRange(in.Start, in.End)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSlotCreateFailed, err)
	}
	capacity, err := domain.NewSlotCapacity(in.CapacityTotal, in.CapacityPerType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSlotCreateFailed, err)
	}

	status := domain.SlotOpen
	if in.Status != "" {
		status, _ = domain.ParseSlotStatus(in.Status)
	}

	slot := &domain.Slot{
		ExperienceID: in.ExperienceID,
		Range:        tr,
		Capacity:     capacity,
		Status:       status,
	}

	created, err := f.repo.Create(ctx, slot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSlotCreateFailed, err)
	}
	if created == nil || created.ID == 0 {
		return nil, fmt.Errorf("%w: repository returned no slot", domain.ErrSlotCreateFailed)
	}

	event := events.SlotCreatedEvent{
		SlotID:       created.ID,
		ExperienceID: created.ExperienceID,
		StartUTC:     created.Range.Start(),
		EndUTC:       created.Range.End(),
		Total:        created.Capacity.Total(),
	}
	if err := f.bus.Publish(ctx, events.SlotCreated, event); err != nil {
		logger.ErrorContext(ctx, "Failed to publish slot created event", "error", err, "slot_id", created.ID)
	}

	return created, nil
}

func (f *Factory) Get(ctx context.Context, id int64) (*domain.Slot, error) {
	return f.repo.GetByID(ctx, id)
}

// UpdateStatus moves a slot to an explicit status. Closed and cancelled
// are soft states; the row stays in place for reservations that already
// reference it.
func (f *Factory) UpdateStatus(ctx context.Context, id int64, raw string) (*domain.Slot, error) {
	status, ok := domain.ParseSlotStatus(raw)
	if !ok {
		return nil, domain.NewValidationError("status", domain.CodeInvalidStatus,
			fmt.Sprintf("unknown slot status %q", raw))
	}
	if err := f.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return f.repo.GetByID(ctx, id)
}

// UpdateCapacity replaces the slot's capacity block after re-validating
// it. Lowering the total below the quantity already booked is allowed;
// existing reservations are never touched, the slot just stops accepting
// new ones.
func (f *Factory) UpdateCapacity(ctx context.Context, id int64, total int, perType map[string]int) (*domain.Slot, error) {
	capacity, err := domain.NewSlotCapacity(total, perType)
	if err != nil {
		return nil, err
	}
	if err := f.repo.UpdateCapacity(ctx, id, capacity); err != nil {
		return nil, err
	}
	return f.repo.GetByID(ctx, id)
}

// EnsureSlot is the idempotent get-or-create for a logical slot. The
// repository lookup on (experience, range) is authoritative; a hit returns
// the row untouched, a miss creates it with default capacity resolution.
func (f *Factory) EnsureSlot(ctx context.Context, experienceID int64, tr domain.TimeRange) (*domain.Slot, error) {
	existing, err := f.repo.FindByExperienceAndRange(ctx, experienceID, tr)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrSlotNotFound) {
		return nil, fmt.Errorf("%w: %v", domain.ErrSlotCreateFailed, err)
	}

	created, err := f.Create(ctx, validation.SlotInput{
		ExperienceID: experienceID,
		Start:        tr.StartString(),
		End:          tr.EndString(),
	})
	if err == nil {
		return created, nil
	}

	// A concurrent booking may have materialized the row between the
	// lookup and the insert; the lookup stays authoritative.
	if again, lookupErr := f.repo.FindByExperienceAndRange(ctx, experienceID, tr); lookupErr == nil {
		return again, nil
	}
	return nil, err
}

func (f *Factory) mergeDefaults(ctx context.Context, in *validation.SlotInput) {
	av, err := f.config.GetAvailability(ctx, in.ExperienceID)
	if err != nil {
		// The provider is an external collaborator; a miss leaves the slot
		// uncapped rather than failing the booking.
		logger.WarnContext(ctx, "Default capacity lookup failed", "error", err, "experience_id", in.ExperienceID)
		return
	}
	in.CapacityTotal = av.DefaultCapacityTotal
	if len(in.CapacityPerType) == 0 {
		in.CapacityPerType = av.DefaultCapacityPerType
	}
}
