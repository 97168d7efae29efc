package domain

import "time"

type ReservationStatus string

const (
	ReservationPendingRequest ReservationStatus = "pending_request"
	ReservationConfirmed      ReservationStatus = "confirmed"
	ReservationCancelled      ReservationStatus = "cancelled"
)

func ParseReservationStatus(s string) (ReservationStatus, bool) {
	switch ReservationStatus(s) {
	case ReservationPendingRequest, ReservationConfirmed, ReservationCancelled:
		return ReservationStatus(s), true
	default:
		return "", false
	}
}

// CanTransitionTo reports whether the status change is legal:
// pending_request -> confirmed | cancelled, confirmed -> cancelled.
// cancelled is terminal.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	switch s {
	case ReservationPendingRequest:
		return next == ReservationConfirmed || next == ReservationCancelled
	case ReservationConfirmed:
		return next == ReservationCancelled
	default:
		return false
	}
}

// Counts reports whether a reservation in this status holds capacity.
func (s ReservationStatus) Counts() bool {
	return s == ReservationPendingRequest || s == ReservationConfirmed
}

// Addon is an extra purchased with a reservation.
type Addon struct {
	Code     string `json:"code"`
	Quantity int    `json:"quantity"`
}

// Reservation books quantity seats against a slot. SlotID is nil for
// reservations addressed at a virtual slot; VirtualRange then carries the
// time range alongside ExperienceID.
type Reservation struct {
	ID            int64
	ExperienceID  int64
	SlotID        *int64
	VirtualRange  *TimeRange
	OrderID       int64
	Quantity      int
	Participants  map[string]int
	Addons        []Addon
	Notes         string
	VoucherID     *int64
	Status        ReservationStatus
	HoldExpiresAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HoldExpired reports whether a pending hold has lapsed at now.
func (r *Reservation) HoldExpired(now time.Time) bool {
	return r.Status == ReservationPendingRequest &&
		r.HoldExpiresAt != nil &&
		r.HoldExpiresAt.Before(now)
}
