package payment

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	"github.com/frahmantamala/smartwater-vending/internal/core/common/validation"
	paymentDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/payment"
	gatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
)

// Transaction is a recorded C2B payment as returned to callers.
type Transaction struct {
	ID                int64           `json:"id"`
	TransactionType   string          `json:"transaction_type"`
	TransID           string          `json:"trans_id"`
	TransTime         string          `json:"trans_time"`
	TransAmount       decimal.Decimal `json:"trans_amount"`
	BusinessShortCode string          `json:"business_short_code"`
	BillRefNumber     string          `json:"bill_ref_number"`
	InvoiceNumber     *string         `json:"invoice_number,omitempty"`
	OrgAccountBalance *string         `json:"org_account_balance"`
	MSISDN            string          `json:"msisdn"`
	FirstName         string          `json:"first_name"`
	MiddleName        string          `json:"middle_name"`
	LastName          string          `json:"last_name"`
	CreatedAt         time.Time       `json:"created_at"`
}

func FromDataModel(row *paymentDatamodel.MpesaTransaction) *Transaction {
	return &Transaction{
		ID:                row.ID,
		TransactionType:   row.TransactionType,
		TransID:           row.TransID,
		TransTime:         row.TransTime,
		TransAmount:       row.TransAmount,
		BusinessShortCode: row.BusinessShortCode,
		BillRefNumber:     row.BillRefNumber,
		InvoiceNumber:     row.InvoiceNumber,
		OrgAccountBalance: row.OrgAccountBalance,
		MSISDN:            row.MSISDN,
		FirstName:         row.FirstName,
		MiddleName:        row.MiddleName,
		LastName:          row.LastName,
		CreatedAt:         row.CreatedAt,
	}
}

// Confirmation is a confirmed payment as delivered by the gateway.
type Confirmation struct {
	TransactionType   string
	TransID           string
	TransTime         string
	Amount            decimal.Decimal
	ShortCode         string
	MeterNumber       string
	PhoneNumber       string
	FirstName         string
	MiddleName        string
	LastName          string
	InvoiceNumber     string
	OrgAccountBalance string
	ThirdPartyTransID string
}

func FromCallback(cb gatewaytypes.C2BCallback) Confirmation {
	return Confirmation{
		TransactionType:   cb.TransactionType,
		TransID:           cb.TransID,
		TransTime:         cb.TransTime,
		Amount:            cb.TransAmount,
		ShortCode:         cb.BusinessShortCode,
		MeterNumber:       strings.TrimSpace(cb.BillRefNumber),
		PhoneNumber:       strings.TrimSpace(cb.MSISDN),
		FirstName:         cb.FirstName,
		MiddleName:        cb.MiddleName,
		LastName:          cb.LastName,
		InvoiceNumber:     cb.InvoiceNumber,
		OrgAccountBalance: cb.OrgAccountBalance,
		ThirdPartyTransID: cb.ThirdPartyTransID,
	}
}

func (c Confirmation) Validate() *errors.AppError {
	validator := validation.NewValidator()
	validator.Field("trans_id", c.TransID).
		Required().
		MaxLength(50)
	validator.VendTarget("bill_ref_number", c.MeterNumber, "msisdn", c.PhoneNumber)
	// the stored amount is rounded to cents, so that is what must be positive
	validator.Field("trans_amount", c.Amount.Round(2)).
		Positive(errors.ErrCodeInvalidAmount)
	return validator.Validate()
}

func (c Confirmation) toDataModel() *paymentDatamodel.MpesaTransaction {
	return &paymentDatamodel.MpesaTransaction{
		TransactionType:   c.TransactionType,
		TransID:           c.TransID,
		TransTime:         c.TransTime,
		TransAmount:       c.Amount.Round(2),
		BusinessShortCode: c.ShortCode,
		BillRefNumber:     c.MeterNumber,
		InvoiceNumber:     optional(c.InvoiceNumber),
		OrgAccountBalance: optional(c.OrgAccountBalance),
		ThirdPartyTransID: optional(c.ThirdPartyTransID),
		MSISDN:            c.PhoneNumber,
		FirstName:         c.FirstName,
		MiddleName:        c.MiddleName,
		LastName:          c.LastName,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Result of recording a confirmation. Duplicate deliveries carry the
// already-stored transaction and change nothing.
type Result struct {
	Transaction *Transaction
	Duplicate   bool
}

type RepositoryAPI interface {
	// Insert stores the row unless its trans_id exists and reports whether it did.
	Insert(ctx context.Context, row *paymentDatamodel.MpesaTransaction) (bool, error)
	// GetByTransID returns nil, nil when absent.
	GetByTransID(ctx context.Context, transID string) (*paymentDatamodel.MpesaTransaction, error)
	List(ctx context.Context, limit int) ([]*paymentDatamodel.MpesaTransaction, error)
	Count(ctx context.Context) (int64, error)
}

type AggregateUpdater interface {
	ApplyPayment(ctx context.Context, meterNumber string, delta aggregate.PaymentDelta) (*aggregate.MeterAggregate, error)
}

type MeterChecker interface {
	Exists(ctx context.Context, meterNumber string) (bool, error)
}
