package domain

import "time"

type VoucherStatus string

const (
	VoucherActive    VoucherStatus = "active"
	VoucherRedeemed  VoucherStatus = "redeemed"
	VoucherCancelled VoucherStatus = "cancelled"
	VoucherRefunded  VoucherStatus = "refunded"
)

func ParseVoucherStatus(s string) (VoucherStatus, bool) {
	switch VoucherStatus(s) {
	case VoucherActive, VoucherRedeemed, VoucherCancelled, VoucherRefunded:
		return VoucherStatus(s), true
	default:
		return "", false
	}
}

// VoucherDelivery is the delivery metadata block. All fields are Unix
// epochs; zero means unset. SendAt zero means "send immediately".
type VoucherDelivery struct {
	SendAt      int64 `json:"send_at"`
	SentAt      int64 `json:"sent_at"`
	ScheduledAt int64 `json:"scheduled_at"`
}

// Voucher is a gift voucher. The commerce layer owns purchase and
// redemption; this core reads and writes only Status and Delivery.
type Voucher struct {
	ID             int64
	Code           string
	Value          int64 // minor currency units
	Currency       string
	ExperienceID   int64
	RecipientName  string
	RecipientEmail string
	Message        string
	Status         VoucherStatus
	Delivery       VoucherDelivery
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (v *Voucher) IsActive() bool { return v.Status == VoucherActive }

// Sent reports whether the voucher email has already gone out. SentAt is
// the source of truth for at-least-once job delivery.
func (v *Voucher) Sent() bool { return v.Delivery.SentAt > 0 }

func (v *Voucher) SendTime() time.Time { return time.Unix(v.Delivery.SendAt, 0).UTC() }
