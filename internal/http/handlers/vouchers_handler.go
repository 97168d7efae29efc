package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/http/response"
	"github.com/tourbase/experience-bookings/internal/service/vouchers"
)

type VoucherHandler struct {
	Service *vouchers.Service
}

func NewVoucherHandler(svc *vouchers.Service) *VoucherHandler {
	return &VoucherHandler{Service: svc}
}

func (h *VoucherHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Patch("/{id}/status", h.updateStatus)
	r.Post("/{id}/delivery", h.schedule)
	r.Delete("/{id}/delivery", h.clear)
	return r
}

type voucherResponse struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Value          int64  `json:"value"`
	Currency       string `json:"currency,omitempty"`
	ExperienceID   int64  `json:"experience_id,omitempty"`
	RecipientName  string `json:"recipient_name,omitempty"`
	RecipientEmail string `json:"recipient_email"`
	Message        string `json:"message,omitempty"`
	Status         string `json:"status"`
	SendAt         int64  `json:"send_at,omitempty"`
	SentAt         int64  `json:"sent_at,omitempty"`
	ScheduledAt    int64  `json:"scheduled_at,omitempty"`
}

func toVoucherResponse(v *domain.Voucher) voucherResponse {
	return voucherResponse{
		ID:             v.ID,
		Code:           v.Code,
		Value:          v.Value,
		Currency:       v.Currency,
		ExperienceID:   v.ExperienceID,
		RecipientName:  v.RecipientName,
		RecipientEmail: v.RecipientEmail,
		Message:        v.Message,
		Status:         string(v.Status),
		SendAt:         v.Delivery.SendAt,
		SentAt:         v.Delivery.SentAt,
		ScheduledAt:    v.Delivery.ScheduledAt,
	}
}

func (h *VoucherHandler) create(w http.ResponseWriter, r *http.Request) {
	var in vouchers.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	created, err := h.Service.Create(r.Context(), in)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, toVoucherResponse(created))
}

type voucherStatusRequest struct {
	Status string `json:"status"`
}

func (h *VoucherHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	var in voucherStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	v, err := h.Service.UpdateStatus(r.Context(), id, in.Status)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toVoucherResponse(v))
}

// schedule routes the voucher to immediate or deferred delivery based on
// its stored send time.
func (h *VoucherHandler) schedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	if err := h.Service.ScheduleDelivery(r.Context(), id); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *VoucherHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	if err := h.Service.ClearSchedule(r.Context(), id); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
