package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	gatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
)

type Gateway interface {
	Environment() string
	GetAccessToken(ctx context.Context) (string, error)
	RegisterURLs(ctx context.Context) (*gatewaytypes.APIResponse, error)
	SimulatePayment(ctx context.Context, meterNumber, amount, msisdn string) (*gatewaytypes.APIResponse, error)
	QueryTransactionStatus(ctx context.Context, transID string) (*gatewaytypes.APIResponse, error)
}

type Recorder interface {
	Record(ctx context.Context, c Confirmation) (*Result, error)
}

type Vender interface {
	Vend(ctx context.Context, req vending.VendRequest) (*vending.VendRecord, error)
}

type SimulatorConfig struct {
	ShortCode     string
	SandboxMSISDN string
}

// Simulator runs a sandbox payment end to end: the gateway accepts a
// simulated C2B payment, the synthetic confirmation is recorded locally and
// the vend is issued before returning.
type Simulator struct {
	gateway  Gateway
	recorder Recorder
	vender   Vender
	cfg      SimulatorConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewSimulator(gateway Gateway, recorder Recorder, vender Vender, cfg SimulatorConfig, logger *slog.Logger) *Simulator {
	if cfg.SandboxMSISDN == "" {
		cfg.SandboxMSISDN = "254708374149"
	}
	return &Simulator{
		gateway:  gateway,
		recorder: recorder,
		vender:   vender,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

type SimulationResult struct {
	Accepted        bool
	GatewayResponse *gatewaytypes.APIResponse
	Transaction     *Transaction
	Vend            *vending.VendRecord
}

// Simulate returns a result with Accepted false when the sandbox declines.
// A stale aggregate on either side is reported alongside a complete result.
func (s *Simulator) Simulate(ctx context.Context, meterNumber string, amount decimal.Decimal) (*SimulationResult, error) {
	resp, err := s.gateway.SimulatePayment(ctx, meterNumber, amount.String(), s.cfg.SandboxMSISDN)
	if err != nil {
		return nil, err
	}

	result := &SimulationResult{GatewayResponse: resp}
	if resp.ResponseDescription != gatewaytypes.SimulateAccepted {
		s.logger.Warn("sandbox rejected payment simulation",
			"meter_number", meterNumber,
			"response_code", resp.ResponseCode,
			"response_description", resp.ResponseDescription)
		return result, nil
	}
	result.Accepted = true

	transID := resp.OriginatorConversationID
	if transID == "" {
		transID = "SIM-" + amount.String()
	}

	var partial error
	recorded, err := s.recorder.Record(ctx, Confirmation{
		TransactionType:   "Pay Bill",
		TransID:           transID,
		TransTime:         s.now().Format("20060102150405"),
		Amount:            amount,
		ShortCode:         s.cfg.ShortCode,
		MeterNumber:       meterNumber,
		PhoneNumber:       s.cfg.SandboxMSISDN,
		FirstName:         "Test",
		LastName:          "User",
		OrgAccountBalance: "0.00",
	})
	if err != nil {
		if !isStaleAggregate(err) || recorded == nil {
			return nil, err
		}
		partial = err
	}
	result.Transaction = recorded.Transaction

	paymentID := recorded.Transaction.ID
	record, err := s.vender.Vend(ctx, vending.VendRequest{
		MeterNumber: meterNumber,
		PhoneNumber: recorded.Transaction.MSISDN,
		Amount:      recorded.Transaction.TransAmount,
		PaymentID:   &paymentID,
	})
	if err != nil {
		if !isStaleAggregate(err) || record == nil {
			return nil, err
		}
		partial = err
	}
	result.Vend = record

	s.logger.Info("payment simulation completed",
		"trans_id", transID,
		"meter_number", meterNumber,
		"token", record.Token,
		"units", record.Units.String())
	return result, partial
}

func isStaleAggregate(err error) bool {
	appErr, ok := errors.IsAppError(err)
	return ok && appErr.Code == errors.ErrCodeAggregateUpdateFailed
}
