package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidTimeRange        = errors.New("invalid time range")
	ErrInvalidCapacity         = errors.New("invalid capacity")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrInsufficientCapacity    = errors.New("insufficient capacity")
	ErrSlotNotFound            = errors.New("slot not found")
	ErrSlotCreateFailed        = errors.New("slot create failed")
	ErrReservationNotFound     = errors.New("reservation not found")
	ErrVoucherNotFound         = errors.New("voucher not found")
	ErrResourceNotFound        = errors.New("resource not found")
)

// Validation error codes surfaced at the API boundary.
const (
	CodeInvalidExperience = "INVALID_EXPERIENCE"
	CodeInvalidTime       = "INVALID_TIME"
	CodeInvalidTimeFormat = "INVALID_TIME_FORMAT"
	CodeInvalidTimeRange  = "INVALID_TIME_RANGE"
	CodeInvalidCapacity   = "INVALID_CAPACITY"
	CodeInvalidStatus     = "INVALID_STATUS"
	CodeInvalidCode       = "INVALID_CODE"
	CodeInvalidValue      = "INVALID_VALUE"
	CodeInvalidEmail      = "INVALID_EMAIL"
)

// ValidationError is a client-input failure carrying a field-level reason
// and an HTTP-style status. Validation failures are never retried.
type ValidationError struct {
	Field  string
	Code   string
	Reason string
	Status int
}

func NewValidationError(field, code, reason string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Code:   code,
		Reason: reason,
		Status: http.StatusBadRequest,
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
