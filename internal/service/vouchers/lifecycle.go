package vouchers

import (
	"context"
	"fmt"

	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/utils"
	"github.com/tourbase/experience-bookings/pkg/logger"
)

// CreateInput is the raw voucher registration payload. Value is in minor
// currency units; SendAt is a Unix epoch, zero meaning "send on demand".
type CreateInput struct {
	Code           string `json:"code"`
	Value          int64  `json:"value"`
	Currency       string `json:"currency"`
	ExperienceID   int64  `json:"experience_id"`
	RecipientName  string `json:"recipient_name"`
	RecipientEmail string `json:"recipient_email"`
	Message        string `json:"message"`
	SendAt         int64  `json:"send_at"`
}

// Create registers a purchased voucher as active. Delivery is a separate
// step so the commerce layer can confirm payment before any email is
// queued.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Voucher, error) {
	if in.Code == "" {
		return nil, domain.NewValidationError("code", domain.CodeInvalidCode, "code is required")
	}
	if in.Value <= 0 {
		return nil, domain.NewValidationError("value", domain.CodeInvalidValue, "value must be positive")
	}
	recipient := utils.NormalizeEmail(in.RecipientEmail)
	if !utils.IsValidEmail(recipient) {
		return nil, domain.NewValidationError("recipient_email", domain.CodeInvalidEmail, "recipient email is not deliverable")
	}

	v := &domain.Voucher{
		Code:           in.Code,
		Value:          in.Value,
		Currency:       in.Currency,
		ExperienceID:   in.ExperienceID,
		RecipientName:  in.RecipientName,
		RecipientEmail: recipient,
		Message:        in.Message,
		Status:         domain.VoucherActive,
		Delivery:       domain.VoucherDelivery{SendAt: in.SendAt},
	}

	created, err := s.repo.Create(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("create voucher: %w", err)
	}
	logger.InfoContext(ctx, "Voucher registered", "voucher_id", created.ID, "send_at", created.Delivery.SendAt)
	return created, nil
}

// UpdateStatus applies a commerce-driven status change. Leaving the
// active status drops any pending delivery schedule, so a cancelled or
// refunded voucher can never be emailed afterwards.
func (s *Service) UpdateStatus(ctx context.Context, voucherID int64, raw string) (*domain.Voucher, error) {
	status, ok := domain.ParseVoucherStatus(raw)
	if !ok {
		return nil, domain.NewValidationError("status", domain.CodeInvalidStatus,
			fmt.Sprintf("unknown voucher status %q", raw))
	}

	v, err := s.repo.GetByID(ctx, voucherID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, voucherID, status); err != nil {
		return nil, err
	}
	v.Status = status

	if status != domain.VoucherActive && !v.Sent() {
		if err := s.dropSchedule(ctx, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}
