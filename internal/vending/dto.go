package vending

import (
	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/core/common/validation"
)

type GenerateTokenRequest struct {
	MeterNumber string          `json:"meter_number"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
}

func (r *GenerateTokenRequest) Validate() *errors.AppError {
	if !r.Amount.IsPositive() {
		return errors.NewInvalidAmountError("amount must be a positive, finite number")
	}
	return validation.ValidateOperatorVendInput(r.MeterNumber, r.PhoneNumber, r.Amount)
}

func (r *GenerateTokenRequest) ToVendRequest() VendRequest {
	return VendRequest{
		MeterNumber: r.MeterNumber,
		PhoneNumber: r.PhoneNumber,
		Amount:      r.Amount,
	}
}

type VendListResponse struct {
	MeterNumber string        `json:"meter_number"`
	Vends       []*VendRecord `json:"vends"`
	Count       int           `json:"count"`
}
