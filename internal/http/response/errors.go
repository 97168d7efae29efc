package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tourbase/experience-bookings/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// WriteJSON writes any payload as a JSON response
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	CodeInvalidTransition = "INVALID_STATUS_TRANSITION"
	CodeSlotCreateFailed  = "SLOT_CREATE_FAILED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func Conflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message, CodeConflict)
}

// WriteDomainError maps a booking-core error onto the right status and
// code. Unknown errors collapse into a 500 so internals never leak.
func WriteDomainError(w http.ResponseWriter, err error) {
	if verr, ok := domain.AsValidationError(err); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(verr.Status)
		resp := ErrorResponse{
			Error: verr.Reason,
			Code:  verr.Code,
			Field: verr.Field,
		}
		if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
			log.Printf("failed to encode error response: %v", encErr)
		}
		return
	}

	switch {
	case errors.Is(err, domain.ErrSlotNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrVoucherNotFound),
		errors.Is(err, domain.ErrResourceNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), CodeNotFound)
	case errors.Is(err, domain.ErrInsufficientCapacity):
		WriteError(w, http.StatusConflict, err.Error(), CodeCapacityExceeded)
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		WriteError(w, http.StatusConflict, err.Error(), CodeInvalidTransition)
	case errors.Is(err, domain.ErrInvalidTimeRange),
		errors.Is(err, domain.ErrInvalidCapacity),
		errors.Is(err, domain.ErrInvalidStatus):
		WriteError(w, http.StatusBadRequest, err.Error(), CodeInvalidInput)
	case errors.Is(err, domain.ErrSlotCreateFailed):
		WriteError(w, http.StatusInternalServerError, "slot creation failed", CodeSlotCreateFailed)
	default:
		InternalError(w, "internal error")
	}
}
