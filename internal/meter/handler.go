package meter

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/smartwater-vending/internal/transport"
)

type ServiceAPI interface {
	Register(ctx context.Context, req RegisterMeterRequest) (*Meter, error)
	Get(ctx context.Context, meterNumber string) (*Meter, error)
	List(ctx context.Context) ([]*Meter, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// Register handles POST /meters
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterMeterRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, r, err)
		return
	}

	m, err := h.Service.Register(r.Context(), req)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, m)
}

// Get handles GET /meters/{meter}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.Service.Get(r.Context(), chi.URLParam(r, "meter"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, m)
}

// List handles GET /meters
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	meters, err := h.Service.List(r.Context())
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, MeterListResponse{Meters: meters, Count: len(meters)})
}
