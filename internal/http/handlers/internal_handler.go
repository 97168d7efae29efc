package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tourbase/experience-bookings/internal/http/response"
	"github.com/tourbase/experience-bookings/internal/service/sweep"
	"github.com/tourbase/experience-bookings/internal/service/vouchers"
)

// InternalHandler exposes manual triggers for background work. These
// routes are for operators and integration tests, not the public API.
type InternalHandler struct {
	Sweeper  *sweep.Sweeper
	Vouchers *vouchers.Service
}

func NewInternalHandler(sw *sweep.Sweeper, v *vouchers.Service) *InternalHandler {
	return &InternalHandler{Sweeper: sw, Vouchers: v}
}

func (h *InternalHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/sweep", h.runSweep)
	r.Post("/vouchers/{id}/deliver", h.deliverVoucher)
	return r
}

func (h *InternalHandler) runSweep(w http.ResponseWriter, r *http.Request) {
	expired := h.Sweeper.Process(r.Context())
	response.WriteJSON(w, http.StatusOK, map[string]int{"expired": expired})
}

func (h *InternalHandler) deliverVoucher(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	payload, err := json.Marshal(map[string]int64{"voucher_id": id})
	if err != nil {
		response.InternalError(w, "internal error")
		return
	}
	if err := h.Vouchers.ProcessScheduledDelivery(r.Context(), payload); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
