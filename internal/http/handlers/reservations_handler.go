package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/http/response"
	"github.com/tourbase/experience-bookings/internal/service/reservations"
)

type ReservationHandler struct {
	Service *reservations.Service
}

func NewReservationHandler(svc *reservations.Service) *ReservationHandler {
	return &ReservationHandler{Service: svc}
}

func (h *ReservationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/{id}", h.getByID)
	r.Post("/{id}/confirm", h.confirm)
	r.Post("/{id}/cancel", h.cancel)
	r.Patch("/{id}/status", h.updateStatus)
	r.Get("/counted", h.counted)
	return r
}

type createReservationRequest struct {
	ExperienceID int64          `json:"experience_id"`
	SlotID       *int64         `json:"slot_id,omitempty"`
	Start        string         `json:"start_utc,omitempty"`
	End          string         `json:"end_utc,omitempty"`
	OrderID      int64          `json:"order_id"`
	Quantity     int            `json:"quantity"`
	Participants map[string]int `json:"participants,omitempty"`
	Addons       []domain.Addon `json:"addons,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	VoucherID    *int64         `json:"voucher_id,omitempty"`
	Hold         bool           `json:"hold"`
}

type reservationResponse struct {
	ID            int64          `json:"id"`
	ExperienceID  int64          `json:"experience_id"`
	SlotID        *int64         `json:"slot_id,omitempty"`
	Start         string         `json:"start_utc,omitempty"`
	End           string         `json:"end_utc,omitempty"`
	OrderID       int64          `json:"order_id"`
	Quantity      int            `json:"quantity"`
	Participants  map[string]int `json:"participants,omitempty"`
	Addons        []domain.Addon `json:"addons,omitempty"`
	Notes         string         `json:"notes,omitempty"`
	VoucherID     *int64         `json:"voucher_id,omitempty"`
	Status        string         `json:"status"`
	HoldExpiresAt *time.Time     `json:"hold_expires_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func toReservationResponse(res *domain.Reservation) reservationResponse {
	out := reservationResponse{
		ID:            res.ID,
		ExperienceID:  res.ExperienceID,
		SlotID:        res.SlotID,
		OrderID:       res.OrderID,
		Quantity:      res.Quantity,
		Participants:  res.Participants,
		Addons:        res.Addons,
		Notes:         res.Notes,
		VoucherID:     res.VoucherID,
		Status:        string(res.Status),
		HoldExpiresAt: res.HoldExpiresAt,
		CreatedAt:     res.CreatedAt,
	}
	if res.VirtualRange != nil {
		out.Start = res.VirtualRange.StartString()
		out.End = res.VirtualRange.EndString()
	}
	return out
}

func (h *ReservationHandler) create(w http.ResponseWriter, r *http.Request) {
	var in createReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}

	input := reservations.CreateInput{
		ExperienceID: in.ExperienceID,
		SlotID:       in.SlotID,
		OrderID:      in.OrderID,
		Quantity:     in.Quantity,
		Participants: in.Participants,
		Addons:       in.Addons,
		Notes:        in.Notes,
		VoucherID:    in.VoucherID,
		Hold:         in.Hold,
	}
	if in.SlotID == nil && in.Start != "" {
		tr, err := domain.ParseTimeRange(in.Start, in.End)
		if err != nil {
			response.WriteDomainError(w, err)
			return
		}
		input.VirtualRange = &tr
	}

	created, err := h.Service.Create(r.Context(), input)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, toReservationResponse(created))
}

func (h *ReservationHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	res, err := h.Service.Get(r.Context(), id)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ReservationConfirmed)
}

func (h *ReservationHandler) cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ReservationCancelled)
}

func (h *ReservationHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	status, ok := domain.ParseReservationStatus(in.Status)
	if !ok {
		response.BadRequest(w, "invalid status (allowed: pending_request, confirmed, cancelled)")
		return
	}
	h.transition(w, r, status)
}

func (h *ReservationHandler) transition(w http.ResponseWriter, r *http.Request, next domain.ReservationStatus) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	updated, err := h.Service.UpdateStatus(r.Context(), id, next)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toReservationResponse(updated))
}

// counted reports the holding quantity for a materialized slot
// (?slot_id=) or a virtual one (?experience_id=&start_utc=&end_utc=).
func (h *ReservationHandler) counted(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var ref domain.SlotRef
	if raw := q.Get("slot_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.BadRequest(w, "invalid slot_id")
			return
		}
		ref = domain.RefByID(id)
	} else {
		experienceID, err := strconv.ParseInt(q.Get("experience_id"), 10, 64)
		if err != nil {
			response.BadRequest(w, "slot_id or experience_id is required")
			return
		}
		tr, err := domain.ParseTimeRange(q.Get("start_utc"), q.Get("end_utc"))
		if err != nil {
			response.WriteDomainError(w, err)
			return
		}
		ref = domain.RefByRange(experienceID, tr)
	}

	counted, err := h.Service.CountedQuantity(r.Context(), ref)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]int{"counted": counted})
}
