package payment

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi"
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

type ServiceAPI interface {
	List(ctx context.Context, limit int) ([]*Transaction, error)
	GetByTransID(ctx context.Context, transID string) (*Transaction, error)
}

type SimulatorAPI interface {
	Simulate(ctx context.Context, meterNumber string, amount decimal.Decimal) (*SimulationResult, error)
}

// Handler serves the operator endpoints under /daraja.
type Handler struct {
	*transport.BaseHandler
	Service         ServiceAPI
	Gateway         Gateway
	Simulator       SimulatorAPI
	CallbackBaseURL string
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, gateway Gateway, simulator SimulatorAPI, callbackBaseURL string) *Handler {
	return &Handler{
		BaseHandler:     baseHandler,
		Service:         service,
		Gateway:         gateway,
		Simulator:       simulator,
		CallbackBaseURL: strings.TrimRight(callbackBaseURL, "/"),
	}
}

func (h *Handler) callbackURLs() map[string]string {
	return map[string]string{
		"validation":   h.CallbackBaseURL + "/api/daraja/validation",
		"confirmation": h.CallbackBaseURL + "/api/daraja/confirmation",
		"timeout":      h.CallbackBaseURL + "/api/daraja/timeout",
	}
}

// ListTransactions handles GET /daraja/transactions
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.HandleError(w, r, errors.NewValidationFieldError("limit", "limit must be a non-negative integer", errors.ErrCodeValidationFailed))
			return
		}
		limit = parsed
	}

	txns, err := h.Service.List(r.Context(), limit)
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	summaries := make([]TransactionSummary, 0, len(txns))
	for _, t := range txns {
		summaries = append(summaries, t.Summary())
	}
	h.WriteJSON(w, http.StatusOK, TransactionListResponse{
		Success:      true,
		Count:        len(summaries),
		Transactions: summaries,
	})
}

// GetTransaction handles GET /daraja/transactions/{trans_id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txn, err := h.Service.GetByTransID(r.Context(), chi.URLParam(r, "trans_id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, TransactionResponse{Success: true, Transaction: txn})
}

// QueryTransactionStatus handles POST /daraja/transactions/{trans_id}/status.
// The outcome arrives later on the transaction-status result URL.
func (h *Handler) QueryTransactionStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Gateway.QueryTransactionStatus(r.Context(), chi.URLParam(r, "trans_id"))
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": resp.Accepted(),
		"data":    resp,
	})
}

// RegisterURLs handles POST /daraja/register-urls
func (h *Handler) RegisterURLs(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Gateway.RegisterURLs(r.Context())
	if err != nil {
		h.HandleError(w, r, err)
		return
	}

	urls := h.callbackURLs()
	delete(urls, "timeout")
	h.WriteJSON(w, http.StatusOK, RegisterURLsResponse{
		Success: true,
		Message: "URLs registered successfully",
		Data:    resp,
		URLs:    urls,
	})
}

// Simulate handles POST /daraja/simulate
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if r.ContentLength != 0 {
		if err := h.DecodeJSON(r, &req); err != nil {
			h.HandleError(w, r, err)
			return
		}
	}
	req.ApplyDefaults()
	if appErr := req.Validate(); appErr != nil {
		h.HandleError(w, r, appErr)
		return
	}

	result, err := h.Simulator.Simulate(r.Context(), req.MeterNumber, req.Amount)
	if err != nil && (result == nil || result.Vend == nil) {
		h.HandleError(w, r, err)
		return
	}
	if err != nil {
		logger.From(r.Context()).Warn("simulation completed with stale aggregate", "meter_number", req.MeterNumber, "error", err)
	}

	if !result.Accepted {
		h.WriteJSON(w, http.StatusOK, SimulateResponse{
			Success:      false,
			Message:      "Sandbox rejected payment simulation",
			DarajaResult: result.GatewayResponse,
		})
		return
	}

	h.WriteJSON(w, http.StatusOK, SimulateResponse{
		Success:      true,
		Message:      "Full payment simulation and vending completed",
		DarajaResult: result.GatewayResponse,
		Transaction: &SimulatedTransaction{
			TransID:     result.Transaction.TransID,
			Amount:      result.Transaction.TransAmount,
			MSISDN:      result.Transaction.MSISDN,
			MeterNumber: result.Transaction.BillRefNumber,
		},
		VendingResult: &VendingResult{
			Token:     result.Vend.Token,
			Units:     result.Vend.Units,
			Timestamp: result.Vend.Timestamp.String(),
		},
	})
}

// TestConnection handles GET /daraja/test-connection
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	token, err := h.Gateway.GetAccessToken(r.Context())
	if err != nil {
		h.HandleError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, TestConnectionResponse{
		Success:     true,
		Message:     "M-Pesa connection successful",
		TokenLength: len(token),
		Environment: h.Gateway.Environment(),
	})
}

// DebugRoutes handles GET /daraja/debug/routes
func (h *Handler) DebugRoutes(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"router_prefix": "/api/daraja",
		"routes": []map[string]interface{}{
			{"path": "/api/daraja/validation", "methods": []string{http.MethodGet, http.MethodPost}},
			{"path": "/api/daraja/confirmation", "methods": []string{http.MethodGet, http.MethodPost}},
			{"path": "/api/daraja/timeout", "methods": []string{http.MethodGet, http.MethodPost}},
			{"path": "/api/daraja/transaction-status/result", "methods": []string{http.MethodPost}},
		},
		"callback_urls": h.callbackURLs(),
	})
}
