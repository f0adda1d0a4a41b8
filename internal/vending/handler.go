package vending

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
)

type ServiceAPI interface {
	Vend(ctx context.Context, req VendRequest) (*VendRecord, error)
	GetByToken(ctx context.Context, token string) (*VendRecord, error)
	ListByMeter(ctx context.Context, meterNumber string, limit int) ([]*VendRecord, error)
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

// GenerateToken handles POST /vending/generate
func (h *Handler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req GenerateTokenRequest
	if err := h.DecodeJSON(r, &req); err != nil {
		h.HandleError(w, r, err)
		return
	}
	if appErr := req.Validate(); appErr != nil {
		h.HandleError(w, r, appErr)
		return
	}

	record, err := h.Service.Vend(r.Context(), req.ToVendRequest())
	if err != nil {
		appErr, ok := errors.IsAppError(err)
		if ok && record != nil && appErr.Code == errors.ErrCodeAggregateUpdateFailed {
			// the vend is durable, so the caller still gets the token
			h.WriteJSON(w, appErr.StatusCode, map[string]interface{}{
				"error": appErr,
				"vend":  record,
			})
			return
		}
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, record)
}

// GetByToken handles GET /vending/tokens/{token}
func (h *Handler) GetByToken(w http.ResponseWriter, r *http.Request) {
	record, err := h.Service.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, record)
}

// ListByMeter handles GET /meters/{meter}/vends
func (h *Handler) ListByMeter(w http.ResponseWriter, r *http.Request) {
	meterNumber := chi.URLParam(r, "meter")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.HandleError(w, r, errors.NewValidationFieldError("limit", "limit must be a non-negative integer", errors.ErrCodeValidationFailed))
			return
		}
		limit = parsed
	}

	records, err := h.Service.ListByMeter(r.Context(), meterNumber, limit)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, VendListResponse{
		MeterNumber: meterNumber,
		Vends:       records,
		Count:       len(records),
	})
}
