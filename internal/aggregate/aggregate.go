package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	meterDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
)

// PaymentDelta is what one confirmed payment contributes to a meter.
type PaymentDelta struct {
	Amount decimal.Decimal
	Payer  string
	At     time.Time
}

// VendDelta is what one persisted vend contributes to a meter. Amount and
// Payer only overwrite the last-entered fields when set.
type VendDelta struct {
	Units  decimal.Decimal
	Amount *decimal.Decimal
	Token  string
	Payer  string
	At     time.Time
}

// Totals are the derived counters a reconciliation repair may overwrite.
type Totals struct {
	DispensedUnits decimal.Decimal
	TokenCount     int64
	AmountPaid     decimal.Decimal
	PaymentCount   int64
	LastTokenTime  *time.Time
	LastPaymentAt  *time.Time
}

type MeterAggregate struct {
	MeterNumber         string           `json:"meter_number"`
	LastEnteredUnits    *decimal.Decimal `json:"last_entered_units"`
	LastUpdateAt        *time.Time       `json:"last_update_at"`
	LastEnteredAmount   *decimal.Decimal `json:"last_entered_amount"`
	LastPayer           *string          `json:"last_payer"`
	TotalDispensedUnits decimal.Decimal  `json:"total_dispensed_units"`
	TotalTokenCount     int64            `json:"total_token_count"`
	LastTokenTime       *time.Time       `json:"last_token_time"`
	TotalAmountPaid     decimal.Decimal  `json:"total_amount_paid"`
	TotalPaymentCount   int64            `json:"total_payment_count"`
	LastPaymentTime     *time.Time       `json:"last_payment_time"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func (a *MeterAggregate) HomeSummary() HomeSummary {
	return HomeSummary{
		MeterNumber:     a.MeterNumber,
		LastUnits:       a.LastEnteredUnits,
		LastUpdate:      a.LastUpdateAt,
		LastAmount:      a.LastEnteredAmount,
		LastPhoneNumber: a.LastPayer,
	}
}

func FromDataModel(m *meterDatamodel.MeterAggregate) *MeterAggregate {
	return &MeterAggregate{
		MeterNumber:         m.MeterNumber,
		LastEnteredUnits:    m.LastEnteredUnits,
		LastUpdateAt:        m.LastUpdateAt,
		LastEnteredAmount:   m.LastEnteredAmount,
		LastPayer:           m.LastPayer,
		TotalDispensedUnits: m.TotalDispensedUnits,
		TotalTokenCount:     m.TotalTokenCount,
		LastTokenTime:       m.LastTokenTime,
		TotalAmountPaid:     m.TotalAmountPaid,
		TotalPaymentCount:   m.TotalPaymentCount,
		LastPaymentTime:     m.LastPaymentTime,
		UpdatedAt:           m.UpdatedAt,
	}
}
