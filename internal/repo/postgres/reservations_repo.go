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

type ReservationRepo interface {
	Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error)
	CreateGuarded(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error)
	GetByID(ctx context.Context, id int64) (*domain.Reservation, error)
	UpdateStatus(ctx context.Context, id int64, from, to domain.ReservationStatus) error
	ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	CountedBySlot(ctx context.Context, slotID int64) (int, error)
	CountedByRange(ctx context.Context, experienceID int64, tr domain.TimeRange) (int, error)
}

type ReservationRepoImpl struct{ pool *pgxpool.Pool }

func NewReservationRepo(pool *pgxpool.Pool) *ReservationRepoImpl {
	return &ReservationRepoImpl{pool: pool}
}

const reservationCols = `id, experience_id, slot_id, start_utc, end_utc,
order_id, quantity, participants, addons, notes,
voucher_id, status, hold_expires_at, created_at, updated_at`

// Statuses that hold capacity; cancelled rows never count.
const countedStatuses = `('pending_request','confirmed')`

func (r *ReservationRepoImpl) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return insertReservation(ctx, r.pool, res)
}

// CreateGuarded inserts a reservation against a materialized slot while
// holding a row lock on the slot, so two concurrent bookings cannot both
// pass the capacity check. A zero capacity total means unlimited.
func (r *ReservationRepoImpl) CreateGuarded(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	if res.SlotID == nil {
		return nil, fmt.Errorf("guarded create requires a slot id")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var total int
	err = tx.QueryRow(ctx, `SELECT capacity_total FROM slots WHERE id=$1 FOR UPDATE`, *res.SlotID).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}

	var counted int
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity),0) FROM reservations
  WHERE slot_id=$1 AND status IN `+countedStatuses, *res.SlotID).Scan(&counted)
	if err != nil {
		return nil, err
	}

	if total > 0 && counted+res.Quantity > total {
		return nil, domain.ErrInsufficientCapacity
	}

	created, err := insertReservation(ctx, tx, res)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertReservation(ctx context.Context, q execQuerier, res *domain.Reservation) (*domain.Reservation, error) {
	const query = `INSERT INTO reservations (
    experience_id, slot_id, start_utc, end_utc,
    order_id, quantity, participants, addons, notes,
    voucher_id, status, hold_expires_at
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
  RETURNING ` + reservationCols

	participants, err := json.Marshal(res.Participants)
	if err != nil {
		return nil, fmt.Errorf("marshal participants: %w", err)
	}
	addons, err := json.Marshal(res.Addons)
	if err != nil {
		return nil, fmt.Errorf("marshal addons: %w", err)
	}

	var startUTC, endUTC *time.Time
	if res.VirtualRange != nil {
		s, e := res.VirtualRange.Start(), res.VirtualRange.End()
		startUTC, endUTC = &s, &e
	}

	row := q.QueryRow(ctx, query,
		res.ExperienceID, res.SlotID, startUTC, endUTC,
		res.OrderID, res.Quantity, participants, addons, res.Notes,
		res.VoucherID, res.Status, res.HoldExpiresAt,
	)
	return scanReservation(row)
}

func (r *ReservationRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Reservation, error) {
	const q = `SELECT ` + reservationCols + ` FROM reservations WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := scanReservation(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	return res, err
}

// UpdateStatus applies a transition guarded by the expected current status,
// so a concurrent writer cannot replay an already-taken transition. The
// hold expiry is cleared when leaving pending_request.
func (r *ReservationRepoImpl) UpdateStatus(ctx context.Context, id int64, from, to domain.ReservationStatus) error {
	const q = `UPDATE reservations
  SET status=$3,
      hold_expires_at = CASE WHEN $2 = 'pending_request' THEN NULL ELSE hold_expires_at END,
      updated_at = now()
  WHERE id=$1 AND status=$2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, from, to)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrInvalidStatusTransition
	}
	return nil
}

func (r *ReservationRepoImpl) ListExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT ` + reservationCols + ` FROM reservations
  WHERE status = 'pending_request'
    AND hold_expires_at IS NOT NULL
    AND hold_expires_at < $1
  ORDER BY hold_expires_at
  LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs := make([]domain.Reservation, 0, limit)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		rs = append(rs, *res)
	}
	return rs, rows.Err()
}

func (r *ReservationRepoImpl) CountedBySlot(ctx context.Context, slotID int64) (int, error) {
	const q = `SELECT COALESCE(SUM(quantity),0) FROM reservations
  WHERE slot_id=$1 AND status IN ` + countedStatuses

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var counted int
	err := r.pool.QueryRow(ctx, q, slotID).Scan(&counted)
	return counted, err
}

// CountedByRange sums holding reservations for a virtual slot: rows booked
// directly against the (experience, range) pair plus rows attached to a
// slot materialized for the same pair.
func (r *ReservationRepoImpl) CountedByRange(ctx context.Context, experienceID int64, tr domain.TimeRange) (int, error) {
	const q = `SELECT COALESCE(SUM(r.quantity),0)
  FROM reservations r
  LEFT JOIN slots s ON s.id = r.slot_id
  WHERE r.experience_id = $1
    AND r.status IN ` + countedStatuses + `
    AND (
      (r.slot_id IS NULL AND r.start_utc = $2 AND r.end_utc = $3)
      OR (s.start_utc = $2 AND s.end_utc = $3)
    )`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var counted int
	err := r.pool.QueryRow(ctx, q, experienceID, tr.Start(), tr.End()).Scan(&counted)
	return counted, err
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var (
		res              domain.Reservation
		startUTC, endUTC *time.Time
		participantsRaw  []byte
		addonsRaw        []byte
	)
	err := row.Scan(
		&res.ID, &res.ExperienceID, &res.SlotID, &startUTC, &endUTC,
		&res.OrderID, &res.Quantity, &participantsRaw, &addonsRaw, &res.Notes,
		&res.VoucherID, &res.Status, &res.HoldExpiresAt, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if startUTC != nil && endUTC != nil {
		tr, err := domain.NewTimeRange(*startUTC, *endUTC)
		if err != nil {
			return nil, fmt.Errorf("reservation %d: %w", res.ID, err)
		}
		res.VirtualRange = &tr
	}
	if len(participantsRaw) > 0 {
		if err := json.Unmarshal(participantsRaw, &res.Participants); err != nil {
			return nil, fmt.Errorf("reservation %d: unmarshal participants: %w", res.ID, err)
		}
	}
	if len(addonsRaw) > 0 {
		if err := json.Unmarshal(addonsRaw, &res.Addons); err != nil {
			return nil, fmt.Errorf("reservation %d: unmarshal addons: %w", res.ID, err)
		}
	}
	return &res, nil
}

var _ ReservationRepo = (*ReservationRepoImpl)(nil)
