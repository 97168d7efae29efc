package domain

import "fmt"

// SlotCapacity holds a slot's total capacity and the optional
// per-participant-type breakdown. Immutable once built; the constructor
// trusts validated input and never clamps.
type SlotCapacity struct {
	total   int
	perType map[string]int
}

// NewSlotCapacity builds a SlotCapacity. When total > 0 and a breakdown is
// present, the per-type sum must not exceed the total. A zero total leaves
// the breakdown uncapped.
func NewSlotCapacity(total int, perType map[string]int) (SlotCapacity, error) {
	if total > 0 && len(perType) > 0 {
		sum := 0
		for _, n := range perType {
			sum += n
		}
		if sum > total {
			return SlotCapacity{}, fmt.Errorf("%w: per-type sum %d exceeds total %d", ErrInvalidCapacity, sum, total)
		}
	}

	cp := make(map[string]int, len(perType))
	for k, v := range perType {
		cp[k] = v
	}
	return SlotCapacity{total: total, perType: cp}, nil
}

func (c SlotCapacity) Total() int { return c.total }

// PerType returns a copy of the per-participant-type breakdown.
func (c SlotCapacity) PerType() map[string]int {
	cp := make(map[string]int, len(c.perType))
	for k, v := range c.perType {
		cp[k] = v
	}
	return cp
}

// ForType returns the capacity reserved for a participant type, 0 when the
// type has no entry.
func (c SlotCapacity) ForType(participantType string) int {
	return c.perType[participantType]
}

func (c SlotCapacity) PerTypeSum() int {
	sum := 0
	for _, n := range c.perType {
		sum += n
	}
	return sum
}
