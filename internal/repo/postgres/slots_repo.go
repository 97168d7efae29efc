package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourbase/experience-bookings/internal/domain"
)

type SlotRepo interface {
	Create(ctx context.Context, slot *domain.Slot) (*domain.Slot, error)
	GetByID(ctx context.Context, id int64) (*domain.Slot, error)
	FindByExperienceAndRange(ctx context.Context, experienceID int64, tr domain.TimeRange) (*domain.Slot, error)
	UpdateStatus(ctx context.Context, id int64, status domain.SlotStatus) error
	UpdateCapacity(ctx context.Context, id int64, capacity domain.SlotCapacity) error
}

type SlotRepoImpl struct{ pool *pgxpool.Pool }

func NewSlotRepo(pool *pgxpool.Pool) *SlotRepoImpl { return &SlotRepoImpl{pool: pool} }

const slotCols = `id, experience_id, start_utc, end_utc,
capacity_total, capacity_per_type, status,
resource_lock, price_rules, created_at, updated_at`

func (r *SlotRepoImpl) Create(ctx context.Context, slot *domain.Slot) (*domain.Slot, error) {
	const q = `INSERT INTO slots (
    experience_id, start_utc, end_utc,
    capacity_total, capacity_per_type, status,
    resource_lock, price_rules
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
  RETURNING ` + slotCols

	perType, err := json.Marshal(slot.Capacity.PerType())
	if err != nil {
		return nil, fmt.Errorf("marshal capacity breakdown: %w", err)
	}
	priceRules, err := json.Marshal(slot.PriceRules)
	if err != nil {
		return nil, fmt.Errorf("marshal price rules: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	row := r.pool.QueryRow(ctx, q,
		slot.ExperienceID, slot.Range.Start(), slot.Range.End(),
		slot.Capacity.Total(), perType, slot.Status,
		slot.ResourceLock, priceRules,
	)
	return scanSlot(row)
}

func (r *SlotRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Slot, error) {
	const q = `SELECT ` + slotCols + ` FROM slots WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSlot(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	return s, err
}

func (r *SlotRepoImpl) FindByExperienceAndRange(ctx context.Context, experienceID int64, tr domain.TimeRange) (*domain.Slot, error) {
	const q = `SELECT ` + slotCols + ` FROM slots
  WHERE experience_id=$1 AND start_utc=$2 AND end_utc=$3`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	s, err := scanSlot(r.pool.QueryRow(ctx, q, experienceID, tr.Start(), tr.End()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	return s, err
}

func (r *SlotRepoImpl) UpdateStatus(ctx context.Context, id int64, status domain.SlotStatus) error {
	const q = `UPDATE slots SET status=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func (r *SlotRepoImpl) UpdateCapacity(ctx context.Context, id int64, capacity domain.SlotCapacity) error {
	const q = `UPDATE slots SET capacity_total=$2, capacity_per_type=$3, updated_at=now() WHERE id=$1`

	perType, err := json.Marshal(capacity.PerType())
	if err != nil {
		return fmt.Errorf("marshal capacity breakdown: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, capacity.Total(), perType)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrSlotNotFound
	}
	return nil
}

func scanSlot(row pgx.Row) (*domain.Slot, error) {
	var (
		s          domain.Slot
		start, end time.Time
		total      int
		perTypeRaw []byte
		rulesRaw   []byte
	)
	err := row.Scan(
		&s.ID, &s.ExperienceID, &start, &end,
		&total, &perTypeRaw, &s.Status,
		&s.ResourceLock, &rulesRaw, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tr, err := domain.NewTimeRange(start, end)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", s.ID, err)
	}
	s.Range = tr

	perType := map[string]int{}
	if len(perTypeRaw) > 0 {
		if err := json.Unmarshal(perTypeRaw, &perType); err != nil {
			return nil, fmt.Errorf("slot %d: unmarshal capacity breakdown: %w", s.ID, err)
		}
	}
	capacity, err := domain.NewSlotCapacity(total, perType)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", s.ID, err)
	}
	s.Capacity = capacity

	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &s.PriceRules); err != nil {
			return nil, fmt.Errorf("slot %d: unmarshal price rules: %w", s.ID, err)
		}
	}
	return &s, nil
}

var _ SlotRepo = (*SlotRepoImpl)(nil)
