// Package validation holds the pure pre-flight checks run over raw slot
// input before any value object is built. The admin/API layer calls these
// directly; the slot factory runs them on every create.
package validation

import (
	"fmt"

	"github.com/tourbase/experience-bookings/internal/domain"
)

// SlotInput is the raw, untrusted shape of a slot creation request.
type SlotInput struct {
	ExperienceID    int64          `json:"experience_id"`
	Start           string         `json:"start"`
	End             string         `json:"end"`
	CapacityTotal   int            `json:"capacity_total"`
	CapacityPerType map[string]int `json:"capacity_per_type,omitempty"`
	Status          string         `json:"status,omitempty"`
}

// ValidateSlot checks a proposed slot's shape. It is side-effect free and
// returns nil or a *domain.ValidationError with a 400-class status.
func ValidateSlot(in SlotInput) error {
	if in.ExperienceID <= 0 {
		return domain.NewValidationError("experience_id", domain.CodeInvalidExperience,
			"experience id must be a positive integer")
	}

	if in.Start == "" {
		return domain.NewValidationError("start", domain.CodeInvalidTime, "start time is required")
	}
	if in.End == "" {
		return domain.NewValidationError("end", domain.CodeInvalidTime, "end time is required")
	}

	start, err := domain.ParseUTCTime(in.Start)
	if err != nil {
		return domain.NewValidationError("start", domain.CodeInvalidTimeFormat,
			fmt.Sprintf("unparseable start time %q", in.Start))
	}
	end, err := domain.ParseUTCTime(in.End)
	if err != nil {
		return domain.NewValidationError("end", domain.CodeInvalidTimeFormat,
			fmt.Sprintf("unparseable end time %q", in.End))
	}
	if !end.After(start) {
		return domain.NewValidationError("end", domain.CodeInvalidTimeRange,
			"end time must be after start time")
	}

	if in.CapacityTotal < 0 {
		return domain.NewValidationError("capacity_total", domain.CodeInvalidCapacity,
			"capacity total must not be negative")
	}
	perTypeSum := 0
	for participantType, n := range in.CapacityPerType {
		if n < 0 {
			return domain.NewValidationError("capacity_per_type", domain.CodeInvalidCapacity,
				fmt.Sprintf("capacity for %q must not be negative", participantType))
		}
		perTypeSum += n
	}
	if in.CapacityTotal > 0 && len(in.CapacityPerType) > 0 && perTypeSum > in.CapacityTotal {
		return domain.NewValidationError("capacity_per_type", domain.CodeInvalidCapacity,
			fmt.Sprintf("per-type capacity sum %d exceeds total %d", perTypeSum, in.CapacityTotal))
	}

	if in.Status != "" {
		if _, ok := domain.ParseSlotStatus(in.Status); !ok {
			return domain.NewValidationError("status", domain.CodeInvalidStatus,
				fmt.Sprintf("unknown slot status %q", in.Status))
		}
	}

	return nil
}
