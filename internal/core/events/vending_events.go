package events

import (
	"github.com/shopspring/decimal"
)

const (
	EventTypePaymentRecorded     = "payment.recorded"
	EventTypeVendCompleted       = "vend.completed"
	EventTypeVendAggregateFailed = "vend.aggregate_failed"
)

type PaymentRecordedEvent struct {
	BaseEvent
	PaymentID   int64           `json:"payment_id"`
	TransID     string          `json:"trans_id"`
	MeterNumber string          `json:"meter_number"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
}

func NewPaymentRecordedEvent(paymentID int64, transID, meterNumber, phoneNumber string, amount decimal.Decimal) *PaymentRecordedEvent {
	return &PaymentRecordedEvent{
		BaseEvent: newBaseEvent(EventTypePaymentRecorded, map[string]interface{}{
			"payment_id":   paymentID,
			"trans_id":     transID,
			"meter_number": meterNumber,
			"phone_number": phoneNumber,
			"amount":       amount.String(),
		}),
		PaymentID:   paymentID,
		TransID:     transID,
		MeterNumber: meterNumber,
		PhoneNumber: phoneNumber,
		Amount:      amount,
	}
}

type VendCompletedEvent struct {
	BaseEvent
	VendID      int64           `json:"vend_id"`
	Reference   string          `json:"reference"`
	MeterNumber string          `json:"meter_number"`
	Token       string          `json:"token"`
	Units       decimal.Decimal `json:"units"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentID   *int64          `json:"payment_id,omitempty"`
}

func NewVendCompletedEvent(vendID int64, reference, meterNumber, token string, units, amount decimal.Decimal, paymentID *int64) *VendCompletedEvent {
	return &VendCompletedEvent{
		BaseEvent: newBaseEvent(EventTypeVendCompleted, map[string]interface{}{
			"vend_id":      vendID,
			"reference":    reference,
			"meter_number": meterNumber,
			"units":        units.String(),
			"amount":       amount.String(),
		}),
		VendID:      vendID,
		Reference:   reference,
		MeterNumber: meterNumber,
		Token:       token,
		Units:       units,
		Amount:      amount,
		PaymentID:   paymentID,
	}
}

// VendAggregateFailedEvent marks a durable vend whose aggregate is stale until reconciled.
type VendAggregateFailedEvent struct {
	BaseEvent
	VendID        int64           `json:"vend_id"`
	Reference     string          `json:"reference"`
	MeterNumber   string          `json:"meter_number"`
	Units         decimal.Decimal `json:"units"`
	FailureReason string          `json:"failure_reason"`
}

func NewVendAggregateFailedEvent(vendID int64, reference, meterNumber string, units decimal.Decimal, failureReason string) *VendAggregateFailedEvent {
	return &VendAggregateFailedEvent{
		BaseEvent: newBaseEvent(EventTypeVendAggregateFailed, map[string]interface{}{
			"vend_id":        vendID,
			"reference":      reference,
			"meter_number":   meterNumber,
			"units":          units.String(),
			"failure_reason": failureReason,
		}),
		VendID:        vendID,
		Reference:     reference,
		MeterNumber:   meterNumber,
		Units:         units,
		FailureReason: failureReason,
	}
}
