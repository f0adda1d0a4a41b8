package payment

import (
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/core/common/validation"
	gatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
)

type TransactionSummary struct {
	ID            int64           `json:"id"`
	TransID       string          `json:"trans_id"`
	TransAmount   decimal.Decimal `json:"trans_amount"`
	BillRefNumber string          `json:"bill_ref_number"`
	MSISDN        string          `json:"msisdn"`
	TransTime     string          `json:"trans_time"`
	FirstName     string          `json:"first_name"`
	LastName      string          `json:"last_name"`
}

func (t *Transaction) Summary() TransactionSummary {
	return TransactionSummary{
		ID:            t.ID,
		TransID:       t.TransID,
		TransAmount:   t.TransAmount,
		BillRefNumber: t.BillRefNumber,
		MSISDN:        t.MSISDN,
		TransTime:     t.TransTime,
		FirstName:     t.FirstName,
		LastName:      t.LastName,
	}
}

type TransactionListResponse struct {
	Success      bool                 `json:"success"`
	Count        int                  `json:"count"`
	Transactions []TransactionSummary `json:"transactions"`
}

type TransactionResponse struct {
	Success     bool         `json:"success"`
	Transaction *Transaction `json:"transaction"`
}

// SimulateRequest drives POST /daraja/simulate. Both fields are optional.
type SimulateRequest struct {
	MeterNumber string          `json:"meter_number"`
	Amount      decimal.Decimal `json:"amount"`
}

func (r *SimulateRequest) ApplyDefaults() {
	if r.MeterNumber == "" {
		r.MeterNumber = "MTR001"
	}
	if r.Amount.IsZero() {
		r.Amount = decimal.NewFromInt(100)
	}
}

func (r SimulateRequest) Validate() *errors.AppError {
	validator := validation.NewValidator()
	validator.Field("meter_number", r.MeterNumber).
		Required().
		MaxLength(50)
	validator.Field("amount", r.Amount).
		MinDecimal(decimal.NewFromInt(1), errors.ErrCodeInvalidAmount)
	return validator.Validate()
}

type SimulatedTransaction struct {
	TransID     string          `json:"trans_id"`
	Amount      decimal.Decimal `json:"amount"`
	MSISDN      string          `json:"msisdn"`
	MeterNumber string          `json:"meter_number"`
}

type VendingResult struct {
	Token     string          `json:"token"`
	Units     decimal.Decimal `json:"units"`
	Timestamp string          `json:"timestamp"`
}

type SimulateResponse struct {
	Success       bool                     `json:"success"`
	Message       string                   `json:"message"`
	DarajaResult  *gatewaytypes.APIResponse `json:"daraja_result"`
	Transaction   *SimulatedTransaction    `json:"transaction,omitempty"`
	VendingResult *VendingResult           `json:"vending_result,omitempty"`
}

type RegisterURLsResponse struct {
	Success bool                      `json:"success"`
	Message string                    `json:"message"`
	Data    *gatewaytypes.APIResponse `json:"data"`
	URLs    map[string]string         `json:"urls"`
}

type TestConnectionResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	TokenLength int    `json:"token_length"`
	Environment string `json:"environment"`
}
