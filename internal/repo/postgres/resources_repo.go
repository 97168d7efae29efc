package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourbase/experience-bookings/internal/domain"
)

type ResourceRepo interface {
	Create(ctx context.Context, res *domain.Resource) (*domain.Resource, error)
	GetByID(ctx context.Context, id int64) (*domain.Resource, error)
	Update(ctx context.Context, res *domain.Resource) (*domain.Resource, error)
	List(ctx context.Context, resourceType *domain.ResourceType, limit, offset int) ([]domain.Resource, error)
	Delete(ctx context.Context, id int64) error
}

type ResourceRepoImpl struct{ pool *pgxpool.Pool }

func NewResourceRepo(pool *pgxpool.Pool) *ResourceRepoImpl { return &ResourceRepoImpl{pool: pool} }

const resourceCols = `id, type, name, calendar, notes, created_at, updated_at`

func (r *ResourceRepoImpl) Create(ctx context.Context, res *domain.Resource) (*domain.Resource, error) {
	const q = `INSERT INTO resources (type, name, calendar, notes)
  VALUES ($1,$2,$3,$4)
  RETURNING ` + resourceCols

	calendar, err := domain.EncodeCalendar(res.Calendar)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return scanResource(r.pool.QueryRow(ctx, q, res.Type, res.Name, calendar, res.Notes))
}

func (r *ResourceRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Resource, error) {
	const q = `SELECT ` + resourceCols + ` FROM resources WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := scanResource(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrResourceNotFound
	}
	return res, err
}

func (r *ResourceRepoImpl) Update(ctx context.Context, res *domain.Resource) (*domain.Resource, error) {
	const q = `UPDATE resources
  SET type=$2, name=$3, calendar=$4, notes=$5, updated_at=$6
  WHERE id=$1
  RETURNING ` + resourceCols

	calendar, err := domain.EncodeCalendar(res.Calendar)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	updated, err := scanResource(r.pool.QueryRow(ctx, q,
		res.ID, res.Type, res.Name, calendar, res.Notes, res.UpdatedAt))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrResourceNotFound
	}
	return updated, err
}

func (r *ResourceRepoImpl) List(ctx context.Context, resourceType *domain.ResourceType, limit, offset int) ([]domain.Resource, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	q := `SELECT ` + resourceCols + ` FROM resources`
	args := []any{}
	if resourceType != nil {
		q += ` WHERE type = $1`
		args = append(args, *resourceType)
	}
	q += fmt.Sprintf(` ORDER BY name LIMIT %d OFFSET %d`, limit, offset)

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs := make([]domain.Resource, 0, limit)
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		rs = append(rs, *res)
	}
	return rs, rows.Err()
}

func (r *ResourceRepoImpl) Delete(ctx context.Context, id int64) error {
	const q = `DELETE FROM resources WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrResourceNotFound
	}
	return nil
}

func scanResource(row pgx.Row) (*domain.Resource, error) {
	var (
		res         domain.Resource
		calendarRaw []byte
	)
	err := row.Scan(&res.ID, &res.Type, &res.Name, &calendarRaw, &res.Notes, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}

	calendar, err := domain.DecodeCalendar(calendarRaw)
	if err != nil {
		return nil, fmt.Errorf("resource %d: %w", res.ID, err)
	}
	res.Calendar = calendar
	return &res, nil
}

var _ ResourceRepo = (*ResourceRepoImpl)(nil)
