package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// MpesaTransaction is one confirmed C2B payment. Rows are never updated.
type MpesaTransaction struct {
	ID                int64           `gorm:"primaryKey"`
	TransactionType   string          `gorm:"column:transaction_type;size:50"`
	TransID           string          `gorm:"column:trans_id;size:50;not null;uniqueIndex"`
	TransTime         string          `gorm:"column:trans_time;size:50"`
	TransAmount       decimal.Decimal `gorm:"column:trans_amount;type:numeric(14,2);not null"`
	BusinessShortCode string          `gorm:"column:business_short_code;size:20"`
	BillRefNumber     string          `gorm:"column:bill_ref_number;size:50;index"`
	InvoiceNumber     *string         `gorm:"column:invoice_number;size:50"`
	OrgAccountBalance *string         `gorm:"column:org_account_balance;size:50"`
	ThirdPartyTransID *string         `gorm:"column:third_party_trans_id;size:50"`
	MSISDN            string          `gorm:"column:msisdn;size:64"`
	FirstName         string          `gorm:"column:first_name;size:50"`
	MiddleName        string          `gorm:"column:middle_name;size:50"`
	LastName          string          `gorm:"column:last_name;size:50"`
	CreatedAt         time.Time       `gorm:"column:created_at"`
}

func (MpesaTransaction) TableName() string {
	return "mpesa_transactions"
}
