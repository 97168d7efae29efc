package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourbase/experience-bookings/internal/domain"
)

type VoucherRepo interface {
	Create(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error)
	GetByID(ctx context.Context, id int64) (*domain.Voucher, error)
	UpdateDelivery(ctx context.Context, id int64, delivery domain.VoucherDelivery) error
	UpdateStatus(ctx context.Context, id int64, status domain.VoucherStatus) error
}

type VoucherRepoImpl struct{ pool *pgxpool.Pool }

func NewVoucherRepo(pool *pgxpool.Pool) *VoucherRepoImpl { return &VoucherRepoImpl{pool: pool} }

const voucherCols = `id, code, value, currency, experience_id,
recipient_name, recipient_email, message, status,
send_at, sent_at, scheduled_at, created_at, updated_at`

func (r *VoucherRepoImpl) Create(ctx context.Context, v *domain.Voucher) (*domain.Voucher, error) {
	const q = `INSERT INTO vouchers (
    code, value, currency, experience_id,
    recipient_name, recipient_email, message, status,
    send_at, sent_at, scheduled_at
  ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
  RETURNING ` + voucherCols

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	row := r.pool.QueryRow(ctx, q,
		v.Code, v.Value, v.Currency, v.ExperienceID,
		v.RecipientName, v.RecipientEmail, v.Message, v.Status,
		v.Delivery.SendAt, v.Delivery.SentAt, v.Delivery.ScheduledAt,
	)
	return scanVoucher(row)
}

func (r *VoucherRepoImpl) GetByID(ctx context.Context, id int64) (*domain.Voucher, error) {
	const q = `SELECT ` + voucherCols + ` FROM vouchers WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	v, err := scanVoucher(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrVoucherNotFound
	}
	return v, err
}

func (r *VoucherRepoImpl) UpdateDelivery(ctx context.Context, id int64, delivery domain.VoucherDelivery) error {
	const q = `UPDATE vouchers
  SET send_at=$2, sent_at=$3, scheduled_at=$4, updated_at=now()
  WHERE id=$1`

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, delivery.SendAt, delivery.SentAt, delivery.ScheduledAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrVoucherNotFound
	}
	return nil
}

func (r *VoucherRepoImpl) UpdateStatus(ctx context.Context, id int64, status domain.VoucherStatus) error {
	const q = `UPDATE vouchers SET status=$2, updated_at=now() WHERE id=$1`
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	ct, err := r.pool.Exec(ctx, q, id, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrVoucherNotFound
	}
	return nil
}

func scanVoucher(row pgx.Row) (*domain.Voucher, error) {
	var v domain.Voucher
	err := row.Scan(
		&v.ID, &v.Code, &v.Value, &v.Currency, &v.ExperienceID,
		&v.RecipientName, &v.RecipientEmail, &v.Message, &v.Status,
		&v.Delivery.SendAt, &v.Delivery.SentAt, &v.Delivery.ScheduledAt,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var _ VoucherRepo = (*VoucherRepoImpl)(nil)
