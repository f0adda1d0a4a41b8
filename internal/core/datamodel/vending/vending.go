package vending

import (
	"time"

	"github.com/shopspring/decimal"
)

type VendToken struct {
	ID          int64           `gorm:"primaryKey"`
	Reference   string          `gorm:"column:reference;size:26;not null;uniqueIndex"`
	MeterNumber string          `gorm:"column:meter_number;size:50;not null;index"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(14,2);not null"`
	Units       decimal.Decimal `gorm:"column:units;type:numeric(14,2);not null"`
	Token       string          `gorm:"column:token;size:64;not null;uniqueIndex"`
	PhoneNumber string          `gorm:"column:phone_number;size:64;not null"`
	// PaymentID is unique when set: one payment vends at most once.
	PaymentID *int64    `gorm:"column:payment_id;uniqueIndex"`
	Timestamp time.Time `gorm:"column:timestamp;not null"`
}

func (VendToken) TableName() string {
	return "vend_tokens"
}
