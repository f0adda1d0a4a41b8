package meter

import (
	"time"

	"github.com/shopspring/decimal"
)

type Meter struct {
	ID           int64     `gorm:"primaryKey"`
	MeterNumber  string    `gorm:"column:meter_number;size:50;not null;uniqueIndex"`
	CustomerName *string   `gorm:"column:customer_name;size:100"`
	PhoneNumber  *string   `gorm:"column:phone_number;size:20"`
	Email        *string   `gorm:"column:email;size:100"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (Meter) TableName() string {
	return "meters"
}

// MeterAggregate holds running totals for one meter. The vend side owns the
// units/token fields, the payment side owns the amount/payment fields, and
// last_entered_amount/last_payer are written by both.
type MeterAggregate struct {
	ID          int64  `gorm:"primaryKey"`
	MeterNumber string `gorm:"column:meter_number;size:50;not null;uniqueIndex"`

	LastEnteredUnits  *decimal.Decimal `gorm:"column:last_entered_units;type:numeric(14,2)"`
	LastUpdateAt      *time.Time       `gorm:"column:last_update_at"`
	LastEnteredAmount *decimal.Decimal `gorm:"column:last_entered_amount;type:numeric(14,2)"`
	LastPayer         *string          `gorm:"column:last_payer;size:64"`

	TotalDispensedUnits decimal.Decimal `gorm:"column:total_dispensed_units;type:numeric(18,2);not null"`
	TotalTokenCount     int64           `gorm:"column:total_token_count;not null"`
	LastTokenTime       *time.Time      `gorm:"column:last_token_time"`

	TotalAmountPaid   decimal.Decimal `gorm:"column:total_amount_paid;type:numeric(18,2);not null"`
	TotalPaymentCount int64           `gorm:"column:total_payment_count;not null"`
	LastPaymentTime   *time.Time      `gorm:"column:last_payment_time"`

	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (MeterAggregate) TableName() string {
	return "meter_aggregates"
}
