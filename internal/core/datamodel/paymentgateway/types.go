package paymentgateway

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	ResponseTypeCompleted      = "Completed"
	CommandCustomerPayBill     = "CustomerPayBillOnline"
	CommandTransactionStatus   = "TransactionStatusQuery"
	IdentifierTypeOrganization = "4"

	// SimulateAccepted is the ResponseDescription the sandbox returns for an accepted simulation.
	SimulateAccepted = "Accept the service request successfully."
)

type AccessTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type RegisterURLRequest struct {
	ShortCode       string `json:"ShortCode"`
	ResponseType    string `json:"ResponseType"`
	ConfirmationURL string `json:"ConfirmationURL"`
	ValidationURL   string `json:"ValidationURL"`
}

type SimulateRequest struct {
	ShortCode     string `json:"ShortCode"`
	CommandID     string `json:"CommandID"`
	Amount        string `json:"Amount"`
	Msisdn        string `json:"Msisdn"`
	BillRefNumber string `json:"BillRefNumber"`
}

func (r *SimulateRequest) Validate() error {
	if r.BillRefNumber == "" {
		return errors.New("bill reference is required")
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil || !amount.IsPositive() {
		return errors.New("amount must be greater than 0")
	}
	return nil
}

type TransactionStatusRequest struct {
	Initiator          string `json:"Initiator"`
	SecurityCredential string `json:"SecurityCredential"`
	CommandID          string `json:"CommandID"`
	TransactionID      string `json:"TransactionID"`
	PartyA             string `json:"PartyA"`
	IdentifierType     string `json:"IdentifierType"`
	ResultURL          string `json:"ResultURL"`
	QueueTimeOutURL    string `json:"QueueTimeOutURL"`
	Remarks            string `json:"Remarks"`
	Occasion           string `json:"Occasion"`
}

// APIResponse is the common acknowledgement envelope of the Daraja endpoints.
type APIResponse struct {
	OriginatorConversationID string `json:"OriginatorConversationID,omitempty"`
	ConversationID           string `json:"ConversationID,omitempty"`
	ResponseCode             string `json:"ResponseCode,omitempty"`
	ResponseDescription      string `json:"ResponseDescription,omitempty"`
	ErrorCode                string `json:"errorCode,omitempty"`
	ErrorMessage             string `json:"errorMessage,omitempty"`
}

func (r APIResponse) Accepted() bool {
	return r.ResponseCode == "0"
}

// C2BCallback is the body Safaricom posts to the validation and confirmation URLs.
type C2BCallback struct {
	TransactionType   string          `json:"TransactionType"`
	TransID           string          `json:"TransID"`
	TransTime         string          `json:"TransTime"`
	TransAmount       decimal.Decimal `json:"TransAmount"`
	BusinessShortCode string          `json:"BusinessShortCode"`
	BillRefNumber     string          `json:"BillRefNumber"`
	InvoiceNumber     string          `json:"InvoiceNumber,omitempty"`
	OrgAccountBalance string          `json:"OrgAccountBalance,omitempty"`
	ThirdPartyTransID string          `json:"ThirdPartyTransID,omitempty"`
	MSISDN            string          `json:"MSISDN"`
	FirstName         string          `json:"FirstName,omitempty"`
	MiddleName        string          `json:"MiddleName,omitempty"`
	LastName          string          `json:"LastName,omitempty"`
}

// CallbackResult answers a C2B callback. ResultCode is 0 or a C2B error string.
type CallbackResult struct {
	ResultCode interface{} `json:"ResultCode"`
	ResultDesc string      `json:"ResultDesc"`
}

const (
	ResultInvalidAccount = "C2B00011"
	ResultInvalidMeter   = "C2B00012"
	ResultAmountTooLow   = "C2B00013"
)
