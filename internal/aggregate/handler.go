package aggregate

import (
	"context"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/frahmantamala/smartwater-vending/internal/transport"
)

type ServiceAPI interface {
	Get(ctx context.Context, meterNumber string) (*MeterAggregate, error)
	GetHomeSummary(ctx context.Context, meterNumber string) (*HomeSummary, error)
	ListHomeSummaries(ctx context.Context) ([]HomeSummary, error)
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

// GetMeterAggregate handles GET /meters/{meter}/aggregate
func (h *Handler) GetMeterAggregate(w http.ResponseWriter, r *http.Request) {
	meterNumber := chi.URLParam(r, "meter")

	agg, err := h.Service.Get(r.Context(), meterNumber)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, agg)
}

// GetHomeSummary handles GET /aggregates/home/{meter}
func (h *Handler) GetHomeSummary(w http.ResponseWriter, r *http.Request) {
	meterNumber := chi.URLParam(r, "meter")

	summary, err := h.Service.GetHomeSummary(r.Context(), meterNumber)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, summary)
}

// ListHomeSummaries handles GET /aggregates/home
func (h *Handler) ListHomeSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Service.ListHomeSummaries(r.Context())
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, HomeSummariesResponse{
		Summaries: summaries,
		Count:     len(summaries),
	})
}
