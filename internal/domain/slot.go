package domain

import "time"

type SlotStatus string

const (
	SlotOpen      SlotStatus = "open"
	SlotClosed    SlotStatus = "closed"
	SlotCancelled SlotStatus = "cancelled"
)

func ParseSlotStatus(s string) (SlotStatus, bool) {
	switch SlotStatus(s) {
	case SlotOpen, SlotClosed, SlotCancelled:
		return SlotStatus(s), true
	default:
		return "", false
	}
}

// PriceRule overrides the experience price for a participant type on this
// slot. Amount is in minor currency units.
type PriceRule struct {
	ParticipantType string `json:"participant_type"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

// Slot is a bookable time slot of an experience. Identity is either the
// numeric ID or, before a row exists, the (experience, time range) pair.
// Slots are never physically deleted while reservations reference them;
// closed/cancelled are soft states.
type Slot struct {
	ID           int64
	ExperienceID int64
	Range        TimeRange
	Capacity     SlotCapacity
	Status       SlotStatus
	ResourceLock *int64 // resource held for this slot, if any
	PriceRules   []PriceRule
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SlotRef addresses a slot by row ID or, for virtual slots that have no row
// yet, by experience and time range.
type SlotRef struct {
	ID           int64
	ExperienceID int64
	Range        TimeRange
}

func (r SlotRef) IsVirtual() bool { return r.ID == 0 }

func RefByID(id int64) SlotRef { return SlotRef{ID: id} }

func RefByRange(experienceID int64, tr TimeRange) SlotRef {
	return SlotRef{ExperienceID: experienceID, Range: tr}
}
