package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/http/response"
	"github.com/tourbase/experience-bookings/internal/service/reservations"
	"github.com/tourbase/experience-bookings/internal/service/slots"
	"github.com/tourbase/experience-bookings/internal/validation"
)

type SlotHandler struct {
	Factory      *slots.Factory
	Reservations *reservations.Service
}

func NewSlotHandler(factory *slots.Factory, res *reservations.Service) *SlotHandler {
	return &SlotHandler{Factory: factory, Reservations: res}
}

func (h *SlotHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Post("/ensure", h.ensure)
	r.Post("/validate", h.validate)
	r.Get("/{id}", h.getByID)
	r.Get("/{id}/capacity", h.capacity)
	r.Patch("/{id}/status", h.updateStatus)
	r.Patch("/{id}/capacity", h.updateCapacity)
	return r
}

type slotResponse struct {
	ID            int64             `json:"id"`
	ExperienceID  int64             `json:"experience_id"`
	Start         string            `json:"start_utc"`
	End           string            `json:"end_utc"`
	CapacityTotal int               `json:"capacity_total"`
	CapacityPer   map[string]int    `json:"capacity_per_type,omitempty"`
	Status        string            `json:"status"`
	PriceRules    []domain.PriceRule `json:"price_rules,omitempty"`
}

func toSlotResponse(s *domain.Slot) slotResponse {
	return slotResponse{
		ID:            s.ID,
		ExperienceID:  s.ExperienceID,
		Start:         s.Range.StartString(),
		End:           s.Range.EndString(),
		CapacityTotal: s.Capacity.Total(),
		CapacityPer:   s.Capacity.PerType(),
		Status:        string(s.Status),
		PriceRules:    s.PriceRules,
	}
}

func (h *SlotHandler) create(w http.ResponseWriter, r *http.Request) {
	var in validation.SlotInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	created, err := h.Factory.Create(r.Context(), in)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, toSlotResponse(created))
}

type ensureSlotRequest struct {
	ExperienceID int64  `json:"experience_id"`
	Start        string `json:"start_utc"`
	End          string `json:"end_utc"`
}

func (h *SlotHandler) ensure(w http.ResponseWriter, r *http.Request) {
	var in ensureSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.ExperienceID <= 0 {
		response.BadRequest(w, "experience_id is required")
		return
	}

	tr, err := domain.ParseTimeRange(in.Start, in.End)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	slot, err := h.Factory.EnsureSlot(r.Context(), in.ExperienceID, tr)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toSlotResponse(slot))
}

func (h *SlotHandler) validate(w http.ResponseWriter, r *http.Request) {
	var in validation.SlotInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	if err := validation.ValidateSlot(in); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (h *SlotHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	slot, err := h.Factory.Get(r.Context(), id)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toSlotResponse(slot))
}

type slotStatusRequest struct {
	Status string `json:"status"`
}

func (h *SlotHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	var in slotStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	slot, err := h.Factory.UpdateStatus(r.Context(), id, in.Status)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toSlotResponse(slot))
}

type slotCapacityRequest struct {
	CapacityTotal int            `json:"capacity_total"`
	CapacityPer   map[string]int `json:"capacity_per_type"`
}

func (h *SlotHandler) updateCapacity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	var in slotCapacityRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	slot, err := h.Factory.UpdateCapacity(r.Context(), id, in.CapacityTotal, in.CapacityPer)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toSlotResponse(slot))
}

func (h *SlotHandler) capacity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	total, remaining, err := h.Reservations.Availability(r.Context(), id)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	out := map[string]any{
		"slot_id":   id,
		"total":     total,
		"remaining": remaining,
		"unlimited": total == 0,
	}
	response.WriteJSON(w, http.StatusOK, out)
}
