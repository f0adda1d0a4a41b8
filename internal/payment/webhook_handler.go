package payment

import (
	"context"
	"encoding/json"
	"net/http"

	gatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/smartwater-vending/internal/transport"
	"github.com/frahmantamala/smartwater-vending/pkg/logger"
)

type CallbackServiceAPI interface {
	Record(ctx context.Context, c Confirmation) (*Result, error)
	CheckValidation(ctx context.Context, cb gatewaytypes.C2BCallback) gatewaytypes.CallbackResult
	Count(ctx context.Context) (int64, error)
}

// WebhookHandler serves the URLs the gateway calls back. Every POST answers
// 200 with a ResultCode body; the gateway retries anything else.
type WebhookHandler struct {
	*transport.BaseHandler
	Service CallbackServiceAPI
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, service CallbackServiceAPI) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

var accepted = gatewaytypes.CallbackResult{ResultCode: 0, ResultDesc: "Accepted"}

// Validation handles GET|POST /api/daraja/validation
func (h *WebhookHandler) Validation(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "validation endpoint is working",
			"method": http.MethodGet,
			"note":   "M-Pesa will POST to this endpoint",
		})
		return
	}

	log := logger.From(r.Context())

	var cb gatewaytypes.C2BCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		log.Error("malformed validation callback", "error", err)
		h.WriteJSON(w, http.StatusOK, accepted)
		return
	}

	result := h.Service.CheckValidation(r.Context(), cb)
	log.Info("validation callback answered",
		"bill_ref_number", cb.BillRefNumber,
		"amount", cb.TransAmount.String(),
		"result_code", result.ResultCode,
		"result_desc", result.ResultDesc)
	h.WriteJSON(w, http.StatusOK, result)
}

// Confirmation handles GET|POST /api/daraja/confirmation
func (h *WebhookHandler) Confirmation(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		count, err := h.Service.Count(r.Context())
		if err != nil {
			h.HandleError(w, r, err)
			return
		}
		h.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":                "confirmation endpoint is working",
			"method":                http.MethodGet,
			"note":                  "M-Pesa will POST to this endpoint",
			"transactions_received": count,
		})
		return
	}

	log := logger.From(r.Context())

	var cb gatewaytypes.C2BCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		log.Error("malformed confirmation callback", "error", err)
		h.WriteJSON(w, http.StatusOK, accepted)
		return
	}

	result, err := h.Service.Record(r.Context(), FromCallback(cb))
	if err != nil {
		if result != nil && isStaleAggregate(err) {
			log.Warn("transaction stored with stale aggregate", "trans_id", cb.TransID, "error", err)
			h.WriteJSON(w, http.StatusOK, gatewaytypes.CallbackResult{ResultCode: 0, ResultDesc: "Success"})
			return
		}
		log.Error("confirmation callback not recorded", "trans_id", cb.TransID, "error", err)
		h.WriteJSON(w, http.StatusOK, accepted)
		return
	}

	log.Info("confirmation callback recorded",
		"trans_id", result.Transaction.TransID,
		"payment_id", result.Transaction.ID,
		"duplicate", result.Duplicate)
	h.WriteJSON(w, http.StatusOK, gatewaytypes.CallbackResult{ResultCode: 0, ResultDesc: "Success"})
}

// Timeout handles GET|POST /api/daraja/timeout
func (h *WebhookHandler) Timeout(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		h.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "timeout endpoint is working",
			"method": http.MethodGet,
		})
		return
	}

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.From(r.Context()).Error("malformed timeout callback", "error", err)
		h.WriteJSON(w, http.StatusOK, accepted)
		return
	}

	logger.From(r.Context()).Warn("gateway timeout callback received", "body", body)
	h.WriteJSON(w, http.StatusOK, gatewaytypes.CallbackResult{ResultCode: 0, ResultDesc: "Timeout received"})
}

// TransactionStatusResult handles POST /api/daraja/transaction-status/result
func (h *WebhookHandler) TransactionStatusResult(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logger.From(r.Context()).Error("malformed transaction status result", "error", err)
	} else {
		logger.From(r.Context()).Info("transaction status result received", "body", body)
	}
	h.WriteJSON(w, http.StatusOK, accepted)
}

// LegacyCallback handles POST /api/mpesa/callback, the pre-Daraja simulated
// callback. It records the payment like a confirmation does.
func (h *WebhookHandler) LegacyCallback(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context())

	var cb gatewaytypes.C2BCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		log.Error("malformed legacy callback", "error", err)
		h.WriteJSON(w, http.StatusOK, accepted)
		return
	}

	if _, err := h.Service.Record(r.Context(), FromCallback(cb)); err != nil {
		log.Error("legacy callback not fully recorded", "trans_id", cb.TransID, "error", err)
	}
	h.WriteJSON(w, http.StatusOK, accepted)
}
