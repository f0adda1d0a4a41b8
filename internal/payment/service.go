package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	gatewaytypes "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/paymentgateway"
	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/internal/metrics"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type ServiceConfig struct {
	RequireRegisteredMeter bool
}

// Service records gateway confirmations. Recording never vends: a stored
// payment is announced on the bus and vending picks it up from there.
type Service struct {
	repo       RepositoryAPI
	aggregates AggregateUpdater
	meters     MeterChecker
	publisher  EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	cfg        ServiceConfig
	now        func() time.Time
}

func NewService(
	repo RepositoryAPI,
	aggregates AggregateUpdater,
	meters MeterChecker,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg ServiceConfig,
) *Service {
	return &Service{
		repo:       repo,
		aggregates: aggregates,
		meters:     meters,
		publisher:  publisher,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Record stores a confirmation once per trans_id, credits the meter and
// publishes payment.recorded. A redelivered trans_id is a no-op.
//
// When the aggregate cannot be credited the payment stays stored, the event is
// still published and the returned error is AGGREGATE_UPDATE_FAILED.
func (s *Service) Record(ctx context.Context, c Confirmation) (*Result, error) {
	if appErr := c.Validate(); appErr != nil {
		s.metrics.RecordPayment(metrics.ResultRejected)
		return nil, appErr
	}

	row := c.toDataModel()
	row.CreatedAt = s.now()

	inserted, err := s.repo.Insert(ctx, row)
	if err != nil {
		s.metrics.RecordPayment(metrics.ResultFailure)
		s.logger.Error("failed to store transaction", "trans_id", c.TransID, "error", err)
		return nil, errors.NewInternalError("failed to store transaction", err)
	}

	if !inserted {
		s.metrics.RecordPayment(metrics.ResultDuplicate)
		existing, err := s.repo.GetByTransID(ctx, c.TransID)
		if err != nil || existing == nil {
			return nil, errors.NewInternalError("failed to load duplicate transaction", err)
		}
		s.logger.Info("duplicate transaction ignored",
			"trans_id", c.TransID,
			"payment_id", existing.ID,
			"meter_number", existing.BillRefNumber)
		return &Result{Transaction: FromDataModel(existing), Duplicate: true}, nil
	}

	s.logger.Info("transaction stored",
		"trans_id", row.TransID,
		"payment_id", row.ID,
		"meter_number", row.BillRefNumber,
		"amount", row.TransAmount.String())

	var aggErr error
	if _, err := s.aggregates.ApplyPayment(ctx, row.BillRefNumber, aggregate.PaymentDelta{
		Amount: row.TransAmount,
		Payer:  row.MSISDN,
		At:     row.CreatedAt,
	}); err != nil {
		s.metrics.RecordAggregateUpdateFailure()
		aggErr = errors.NewAggregateUpdateFailedError(row.BillRefNumber, err)
	}

	event := events.NewPaymentRecordedEvent(row.ID, row.TransID, row.BillRefNumber, row.MSISDN, row.TransAmount)
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Error("failed to publish payment recorded event",
				"trans_id", row.TransID,
				"event_id", event.EventID(),
				"error", err)
		}
	}

	result := &Result{Transaction: FromDataModel(row)}
	if aggErr != nil {
		s.metrics.RecordPayment(metrics.ResultPartial)
		return result, aggErr
	}
	s.metrics.RecordPayment(metrics.ResultSuccess)
	return result, nil
}

// CheckValidation answers the gateway's pre-payment validation request.
func (s *Service) CheckValidation(ctx context.Context, cb gatewaytypes.C2BCallback) gatewaytypes.CallbackResult {
	if cb.BillRefNumber == "" {
		return gatewaytypes.CallbackResult{ResultCode: gatewaytypes.ResultInvalidAccount, ResultDesc: "Invalid account number"}
	}
	if cb.TransAmount.LessThan(decimal.NewFromInt(1)) {
		return gatewaytypes.CallbackResult{ResultCode: gatewaytypes.ResultAmountTooLow, ResultDesc: "Amount too low"}
	}

	if s.cfg.RequireRegisteredMeter && s.meters != nil {
		exists, err := s.meters.Exists(ctx, cb.BillRefNumber)
		if err != nil {
			// a lookup failure must not block the customer's payment
			s.logger.Error("meter lookup failed during validation", "meter_number", cb.BillRefNumber, "error", err)
		} else if !exists {
			return gatewaytypes.CallbackResult{ResultCode: gatewaytypes.ResultInvalidMeter, ResultDesc: "Invalid meter number"}
		}
	}

	return gatewaytypes.CallbackResult{ResultCode: 0, ResultDesc: "Accepted"}
}

func (s *Service) GetByTransID(ctx context.Context, transID string) (*Transaction, error) {
	row, err := s.repo.GetByTransID(ctx, transID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load transaction", err)
	}
	if row == nil {
		return nil, errors.ErrTransactionNotFound
	}
	return FromDataModel(row), nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := s.repo.List(ctx, limit)
	if err != nil {
		return nil, errors.NewInternalError("failed to list transactions", err)
	}

	out := make([]*Transaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromDataModel(row))
	}
	return out, nil
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, errors.NewInternalError("failed to count transactions", err)
	}
	return n, nil
}
