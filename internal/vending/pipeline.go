package vending

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	"github.com/frahmantamala/smartwater-vending/internal/core/common/validation"
	vendingDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/vending"
	"github.com/frahmantamala/smartwater-vending/internal/core/events"
	"github.com/frahmantamala/smartwater-vending/internal/metrics"
	"github.com/frahmantamala/smartwater-vending/internal/tokengen"
)

type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type PipelineConfig struct {
	MaxTokenAttempts int
	NotifyTimeout    time.Duration
}

// Pipeline turns a paid amount into a persisted vend: units, a unique token,
// an SMS to the payer and the meter's running totals.
type Pipeline struct {
	repo       RepositoryAPI
	generator  tokengen.Generator
	converter  *tokengen.Converter
	notifier   Notifier
	aggregates AggregateUpdater
	publisher  EventPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger

	maxAttempts   int
	notifyTimeout time.Duration
	now           func() time.Time
}

type Option func(*Pipeline)

func WithPublisher(p EventPublisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

func NewPipeline(
	repo RepositoryAPI,
	generator tokengen.Generator,
	converter *tokengen.Converter,
	notifier Notifier,
	aggregates AggregateUpdater,
	logger *slog.Logger,
	cfg PipelineConfig,
	opts ...Option,
) *Pipeline {
	if cfg.MaxTokenAttempts < 1 {
		cfg.MaxTokenAttempts = 5
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}
	p := &Pipeline{
		repo:          repo,
		generator:     generator,
		converter:     converter,
		notifier:      notifier,
		aggregates:    aggregates,
		logger:        logger,
		maxAttempts:   cfg.MaxTokenAttempts,
		notifyTimeout: cfg.NotifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Vend runs the vending steps in order. When the aggregate update fails the
// persisted record is returned together with an AGGREGATE_UPDATE_FAILED error.
func (p *Pipeline) Vend(ctx context.Context, req VendRequest) (*VendRecord, error) {
	started := time.Now()
	req.MeterNumber = strings.TrimSpace(req.MeterNumber)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)

	units, err := p.converter.ComputeUnits(req.Amount)
	if err != nil {
		p.metrics.ObserveVend(metrics.ResultRejected, started)
		return nil, apperrors.NewInvalidAmountError("amount must be a positive, finite number").WithCause(err)
	}
	if appErr := validation.ValidateVendInput(req.MeterNumber, req.PhoneNumber, req.Amount); appErr != nil {
		p.metrics.ObserveVend(metrics.ResultRejected, started)
		return nil, appErr
	}

	if req.PaymentID != nil {
		existing, err := p.repo.GetByPaymentID(ctx, *req.PaymentID)
		if err != nil {
			p.metrics.ObserveVend(metrics.ResultFailure, started)
			return nil, apperrors.NewInternalError("failed to look up vend for payment", err)
		}
		if existing != nil {
			p.logger.Info("payment already vended, returning existing record",
				"payment_id", *req.PaymentID,
				"reference", existing.Reference)
			p.metrics.ObserveVend(metrics.ResultDuplicate, started)
			return FromDataModel(existing), nil
		}
	}

	row, existing, err := p.persist(ctx, req, units)
	if err != nil {
		p.metrics.ObserveVend(metrics.ResultFailure, started)
		return nil, err
	}
	if existing != nil {
		p.metrics.ObserveVend(metrics.ResultDuplicate, started)
		return FromDataModel(existing), nil
	}
	record := FromDataModel(row)

	p.logger.Info("vend recorded",
		"reference", record.Reference,
		"meter_number", record.MeterNumber,
		"amount", record.Amount.String(),
		"units", record.Units.String())

	p.notify(ctx, record)

	amount := record.Amount
	_, err = p.aggregates.ApplyVend(ctx, record.MeterNumber, aggregate.VendDelta{
		Units:  record.Units,
		Amount: &amount,
		Token:  record.Token,
		Payer:  record.PhoneNumber,
		At:     record.Timestamp,
	})
	if err != nil {
		p.logger.Error("vend recorded but aggregate update failed",
			"reference", record.Reference,
			"meter_number", record.MeterNumber,
			"error", err)
		p.metrics.RecordAggregateUpdateFailure()
		p.metrics.ObserveVend(metrics.ResultPartial, started)
		p.publish(ctx, events.NewVendAggregateFailedEvent(record.ID, record.Reference, record.MeterNumber, record.Units, err.Error()))
		return record, apperrors.NewAggregateUpdateFailedError(record.MeterNumber, err)
	}

	p.metrics.ObserveVend(metrics.ResultSuccess, started)
	p.publish(ctx, events.NewVendCompletedEvent(record.ID, record.Reference, record.MeterNumber, record.Token, record.Units, record.Amount, record.PaymentID))
	return record, nil
}

// persist inserts the vend with a fresh token, regenerating on collision up to
// the attempt bound. A non-nil existing row means a concurrent vend already
// claimed the payment.
func (p *Pipeline) persist(ctx context.Context, req VendRequest, units decimal.Decimal) (*vendingDatamodel.VendToken, *vendingDatamodel.VendToken, error) {
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		token, err := p.generator.Generate()
		if err != nil {
			lastErr = err
			continue
		}

		taken, err := p.repo.TokenExists(ctx, token)
		if err != nil {
			return nil, nil, apperrors.NewInternalError("failed to check token uniqueness", err)
		}
		if taken {
			lastErr = ErrTokenTaken
			p.metrics.RecordTokenCollision()
			p.logger.Warn("token collision, regenerating", "attempt", attempt)
			continue
		}

		row := &vendingDatamodel.VendToken{
			Reference:   ulid.MustNew(ulid.Timestamp(p.now()), rand.Reader).String(),
			MeterNumber: req.MeterNumber,
			Amount:      req.Amount,
			Units:       units,
			Token:       token,
			PhoneNumber: req.PhoneNumber,
			PaymentID:   req.PaymentID,
			Timestamp:   p.now(),
		}

		err = p.repo.Create(ctx, row)
		switch {
		case err == nil:
			return row, nil, nil
		case errors.Is(err, ErrTokenTaken):
			lastErr = err
			p.metrics.RecordTokenCollision()
			p.logger.Warn("token collision on insert, regenerating", "attempt", attempt)
		case errors.Is(err, ErrPaymentAlreadyVended) && req.PaymentID != nil:
			existing, getErr := p.repo.GetByPaymentID(ctx, *req.PaymentID)
			if getErr != nil || existing == nil {
				return nil, nil, apperrors.NewInternalError("failed to load concurrent vend for payment", getErr)
			}
			p.logger.Info("payment vended concurrently, returning existing record", "payment_id", *req.PaymentID)
			return nil, existing, nil
		default:
			p.logger.Error("failed to persist vend", "meter_number", req.MeterNumber, "error", err)
			return nil, nil, apperrors.NewInternalError("failed to persist vend", err)
		}
	}

	p.logger.Error("token generation exhausted",
		"meter_number", req.MeterNumber,
		"attempts", p.maxAttempts,
		"error", lastErr)
	return nil, nil, apperrors.NewTokenGenerationExhaustedError(p.maxAttempts, lastErr)
}

func (p *Pipeline) notify(ctx context.Context, record *VendRecord) {
	notifyCtx, cancel := context.WithTimeout(ctx, p.notifyTimeout)
	defer cancel()

	if !p.notifier.NotifyVend(notifyCtx, record.PhoneNumber, record.Token, record.Units, record.MeterNumber) {
		p.logger.Warn("vend notification not delivered",
			"reference", record.Reference,
			"phone_number", record.PhoneNumber)
	}
}

func (p *Pipeline) publish(ctx context.Context, event events.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish vend event", "event_type", event.EventType(), "error", err)
	}
}
