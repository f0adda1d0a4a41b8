package paymentgateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/frahmantamala/smartwater-vending/internal"
	paymentgatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/smartwater-vending/internal/metrics"
)

const (
	OperationAccessToken       = "access_token"
	OperationRegisterURLs      = "register_urls"
	OperationSimulate          = "simulate"
	OperationTransactionStatus = "transaction_status"

	tokenSafetyMargin = 60 * time.Second
)

// Client talks to the Daraja C2B API. Every call is bounded by the
// configured timeout and is never retried here.
type Client struct {
	cfg        internal.DarajaConfig
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg internal.DarajaConfig, httpClient *http.Client, logger *slog.Logger, m *metrics.Metrics) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

func (c *Client) Environment() string {
	if strings.Contains(c.cfg.BaseURL, "sandbox") {
		return "sandbox"
	}
	return "production"
}

// GetAccessToken returns the cached OAuth token, fetching a new one when it is
// missing or about to expire.
func (c *Client) GetAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", internal.NewGatewayError(OperationAccessToken, err)
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	c.logger.Info("requesting daraja access token")

	var resp paymentgatewaytypes.AccessTokenResponse
	if err := c.do(req, OperationAccessToken, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		c.metrics.RecordGatewayRequest(OperationAccessToken, metrics.ResultFailure)
		return "", internal.NewGatewayError(OperationAccessToken, errors.New("empty access token"))
	}

	lifetime := time.Hour
	if seconds, err := strconv.Atoi(resp.ExpiresIn); err == nil && seconds > 0 {
		lifetime = time.Duration(seconds) * time.Second
	}
	c.token = resp.AccessToken
	c.tokenExpiry = c.now().Add(lifetime - tokenSafetyMargin)

	c.logger.Info("daraja access token obtained", "expires_in", lifetime.String())
	return c.token, nil
}

func (c *Client) RegisterURLs(ctx context.Context) (*paymentgatewaytypes.APIResponse, error) {
	callback := strings.TrimRight(c.cfg.CallbackBaseURL, "/")
	body := paymentgatewaytypes.RegisterURLRequest{
		ShortCode:       c.cfg.ShortCode,
		ResponseType:    paymentgatewaytypes.ResponseTypeCompleted,
		ConfirmationURL: callback + "/api/daraja/confirmation",
		ValidationURL:   callback + "/api/daraja/validation",
	}

	c.logger.Info("registering c2b urls",
		"confirmation_url", body.ConfirmationURL,
		"validation_url", body.ValidationURL)

	return c.post(ctx, OperationRegisterURLs, "/mpesa/c2b/v1/registerurl", body)
}

// SimulatePayment asks the sandbox to pay amount against meterNumber. An empty
// msisdn uses the configured sandbox test number.
func (c *Client) SimulatePayment(ctx context.Context, meterNumber, amount, msisdn string) (*paymentgatewaytypes.APIResponse, error) {
	if msisdn == "" {
		msisdn = c.cfg.SandboxMSISDN
	}
	body := paymentgatewaytypes.SimulateRequest{
		ShortCode:     c.cfg.ShortCode,
		CommandID:     paymentgatewaytypes.CommandCustomerPayBill,
		Amount:        amount,
		Msisdn:        msisdn,
		BillRefNumber: meterNumber,
	}
	if err := body.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	c.logger.Info("simulating c2b payment", "meter_number", meterNumber, "amount", amount)
	return c.post(ctx, OperationSimulate, "/mpesa/c2b/v1/simulate", body)
}

func (c *Client) QueryTransactionStatus(ctx context.Context, transID string) (*paymentgatewaytypes.APIResponse, error) {
	callback := strings.TrimRight(c.cfg.CallbackBaseURL, "/")
	body := paymentgatewaytypes.TransactionStatusRequest{
		Initiator:          c.cfg.InitiatorName,
		SecurityCredential: c.cfg.SecurityCredential,
		CommandID:          paymentgatewaytypes.CommandTransactionStatus,
		TransactionID:      transID,
		PartyA:             c.cfg.ShortCode,
		IdentifierType:     paymentgatewaytypes.IdentifierTypeOrganization,
		ResultURL:          callback + "/api/daraja/transaction-status/result",
		QueueTimeOutURL:    callback + "/api/daraja/timeout",
		Remarks:            "Transaction status query",
		Occasion:           "Status check",
	}

	c.logger.Info("querying transaction status", "trans_id", transID)
	return c.post(ctx, OperationTransactionStatus, "/mpesa/transactionstatus/v1/query", body)
}

func (c *Client) post(ctx context.Context, operation, path string, payload interface{}) (*paymentgatewaytypes.APIResponse, error) {
	token, err := c.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, internal.NewGatewayError(operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, internal.NewGatewayError(operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp paymentgatewaytypes.APIResponse
	if err := c.do(req, operation, &resp); err != nil {
		return nil, err
	}

	c.logger.Info("daraja request completed",
		"operation", operation,
		"response_code", resp.ResponseCode,
		"response_description", resp.ResponseDescription)
	return &resp, nil
}

// do sends req and decodes a 2xx JSON body into out, classifying failures as
// GATEWAY_TIMEOUT or GATEWAY_FAILED.
func (c *Client) do(req *http.Request, operation string, out interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.metrics.RecordGatewayRequest(operation, metrics.ResultTimeout)
			c.logger.Error("daraja request timed out", "operation", operation, "error", err)
			return internal.NewGatewayTimeoutError(operation, err)
		}
		c.metrics.RecordGatewayRequest(operation, metrics.ResultFailure)
		c.logger.Error("daraja request failed", "operation", operation, "error", err)
		return internal.NewGatewayError(operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordGatewayRequest(operation, metrics.ResultFailure)
		if isTimeout(err) {
			return internal.NewGatewayTimeoutError(operation, err)
		}
		return internal.NewGatewayError(operation, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordGatewayRequest(operation, metrics.ResultFailure)
		c.logger.Error("daraja returned error status",
			"operation", operation,
			"status", resp.StatusCode,
			"response", string(body))
		return internal.NewGatewayError(operation, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))).
			WithDetails(map[string]interface{}{"status": resp.StatusCode, "response": json.RawMessage(validJSON(body))})
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordGatewayRequest(operation, metrics.ResultFailure)
		return internal.NewGatewayError(operation, fmt.Errorf("decode response: %w", err))
	}

	c.metrics.RecordGatewayRequest(operation, metrics.ResultSuccess)
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func validJSON(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
