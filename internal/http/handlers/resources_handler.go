package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tourbase/experience-bookings/internal/domain"
	"github.com/tourbase/experience-bookings/internal/http/response"
	"github.com/tourbase/experience-bookings/internal/service/resources"
)

type ResourceHandler struct {
	Registry *resources.Registry
}

func NewResourceHandler(reg *resources.Registry) *ResourceHandler {
	return &ResourceHandler{Registry: reg}
}

func (h *ResourceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/{id}", h.getByID)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
	return r
}

type resourceRequest struct {
	Type     string          `json:"type"`
	Name     string          `json:"name"`
	Calendar domain.Calendar `json:"calendar"`
	Notes    string          `json:"notes,omitempty"`
}

type resourceResponse struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Name      string          `json:"name"`
	Calendar  domain.Calendar `json:"calendar"`
	Notes     string          `json:"notes,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func toResourceResponse(res *domain.Resource) resourceResponse {
	return resourceResponse{
		ID:        res.ID,
		Type:      string(res.Type),
		Name:      res.Name,
		Calendar:  res.Calendar,
		Notes:     res.Notes,
		CreatedAt: res.CreatedAt,
		UpdatedAt: res.UpdatedAt,
	}
}

func (h *ResourceHandler) create(w http.ResponseWriter, r *http.Request) {
	var in resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.Name == "" {
		response.BadRequest(w, "name is required")
		return
	}

	created, err := h.Registry.Create(r.Context(), &domain.Resource{
		Type:     domain.ResourceType(in.Type),
		Name:     in.Name,
		Calendar: in.Calendar,
		Notes:    in.Notes,
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, toResourceResponse(created))
}

func (h *ResourceHandler) getByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	res, err := h.Registry.Get(r.Context(), id)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toResourceResponse(res))
}

func (h *ResourceHandler) update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	var in resourceRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.BadRequest(w, "invalid json")
		return
	}
	if in.Name == "" {
		response.BadRequest(w, "name is required")
		return
	}

	updated, err := h.Registry.Update(r.Context(), &domain.Resource{
		ID:       id,
		Type:     domain.ResourceType(in.Type),
		Name:     in.Name,
		Calendar: in.Calendar,
		Notes:    in.Notes,
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, toResourceResponse(updated))
}

func (h *ResourceHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(w, "invalid limit")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			response.BadRequest(w, "invalid offset")
			return
		}
		offset = n
	}

	rs, err := h.Registry.List(r.Context(), r.URL.Query().Get("type"), limit, offset)
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	out := make([]resourceResponse, 0, len(rs))
	for i := range rs {
		out = append(out, toResourceResponse(&rs[i]))
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *ResourceHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.BadRequest(w, "invalid id")
		return
	}

	if err := h.Registry.Delete(r.Context(), id); err != nil {
		response.WriteDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
