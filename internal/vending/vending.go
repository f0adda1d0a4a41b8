package vending

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	vendingDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/vending"
)

// VendRequest asks for units for a meter. PaymentID links the vend to the
// payment that paid for it; a payment is vended at most once.
type VendRequest struct {
	MeterNumber string
	PhoneNumber string
	Amount      decimal.Decimal
	PaymentID   *int64
}

type VendRecord struct {
	ID          int64           `json:"id"`
	Reference   string          `json:"reference"`
	MeterNumber string          `json:"meter_number"`
	Amount      decimal.Decimal `json:"amount"`
	Units       decimal.Decimal `json:"units"`
	Token       string          `json:"token"`
	PhoneNumber string          `json:"phone_number"`
	PaymentID   *int64          `json:"payment_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

func FromDataModel(t *vendingDatamodel.VendToken) *VendRecord {
	return &VendRecord{
		ID:          t.ID,
		Reference:   t.Reference,
		MeterNumber: t.MeterNumber,
		Amount:      t.Amount,
		Units:       t.Units,
		Token:       t.Token,
		PhoneNumber: t.PhoneNumber,
		PaymentID:   t.PaymentID,
		Timestamp:   t.Timestamp,
	}
}

var (
	// ErrTokenTaken is returned by Create when the token (or reference) is already stored.
	ErrTokenTaken = errors.New("vend token already issued")
	// ErrPaymentAlreadyVended is returned by Create when the payment already has a vend.
	ErrPaymentAlreadyVended = errors.New("payment already vended")
)

type RepositoryAPI interface {
	Create(ctx context.Context, t *vendingDatamodel.VendToken) error
	TokenExists(ctx context.Context, token string) (bool, error)
	// GetByToken and GetByPaymentID return nil, nil when nothing matches.
	GetByToken(ctx context.Context, token string) (*vendingDatamodel.VendToken, error)
	GetByPaymentID(ctx context.Context, paymentID int64) (*vendingDatamodel.VendToken, error)
	ListByMeter(ctx context.Context, meterNumber string, limit int) ([]*vendingDatamodel.VendToken, error)
}

type Notifier interface {
	NotifyVend(ctx context.Context, phone, token string, units decimal.Decimal, meterNumber string) bool
}

type AggregateUpdater interface {
	ApplyVend(ctx context.Context, meterNumber string, delta aggregate.VendDelta) (*aggregate.MeterAggregate, error)
}
