package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	meterDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
	"github.com/frahmantamala/smartwater-vending/internal/lock"
)

type RepositoryAPI interface {
	GetOrCreate(ctx context.Context, meterNumber string) (*meterDatamodel.MeterAggregate, error)
	ApplyPayment(ctx context.Context, meterNumber string, delta PaymentDelta) (*meterDatamodel.MeterAggregate, error)
	ApplyVend(ctx context.Context, meterNumber string, delta VendDelta) (*meterDatamodel.MeterAggregate, error)
	OverwriteTotals(ctx context.Context, meterNumber string, totals Totals) (*meterDatamodel.MeterAggregate, error)
	// Get returns nil, nil when the meter has no aggregate yet.
	Get(ctx context.Context, meterNumber string) (*meterDatamodel.MeterAggregate, error)
	List(ctx context.Context) ([]*meterDatamodel.MeterAggregate, error)
}

// Service is the only writer of meter aggregates. Both mutation paths run
// under the meter's lock so concurrent events for one meter never interleave.
type Service struct {
	repo   RepositoryAPI
	locker lock.Locker
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, locker lock.Locker, logger *slog.Logger) *Service {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) GetOrCreate(ctx context.Context, meterNumber string) (*MeterAggregate, error) {
	row, err := s.repo.GetOrCreate(ctx, meterNumber)
	if err != nil {
		s.logger.Error("failed to get or create aggregate", "meter_number", meterNumber, "error", err)
		return nil, fmt.Errorf("get or create aggregate %s: %w", meterNumber, err)
	}
	return FromDataModel(row), nil
}

func (s *Service) ApplyPayment(ctx context.Context, meterNumber string, delta PaymentDelta) (*MeterAggregate, error) {
	if delta.At.IsZero() {
		delta.At = s.now()
	}

	unlock, err := s.locker.Lock(ctx, meterNumber)
	if err != nil {
		return nil, fmt.Errorf("lock meter %s: %w", meterNumber, err)
	}
	defer unlock()

	row, err := s.repo.ApplyPayment(ctx, meterNumber, delta)
	if err != nil {
		s.logger.Error("failed to apply payment to aggregate",
			"meter_number", meterNumber,
			"amount", delta.Amount.String(),
			"error", err)
		return nil, fmt.Errorf("apply payment to %s: %w", meterNumber, err)
	}

	s.logger.Info("aggregate updated on payment",
		"meter_number", meterNumber,
		"amount", delta.Amount.String(),
		"total_amount_paid", row.TotalAmountPaid.String(),
		"total_payment_count", row.TotalPaymentCount)
	return FromDataModel(row), nil
}

func (s *Service) ApplyVend(ctx context.Context, meterNumber string, delta VendDelta) (*MeterAggregate, error) {
	if delta.At.IsZero() {
		delta.At = s.now()
	}

	unlock, err := s.locker.Lock(ctx, meterNumber)
	if err != nil {
		return nil, fmt.Errorf("lock meter %s: %w", meterNumber, err)
	}
	defer unlock()

	row, err := s.repo.ApplyVend(ctx, meterNumber, delta)
	if err != nil {
		s.logger.Error("failed to apply vend to aggregate",
			"meter_number", meterNumber,
			"units", delta.Units.String(),
			"error", err)
		return nil, fmt.Errorf("apply vend to %s: %w", meterNumber, err)
	}

	s.logger.Info("aggregate updated on vend",
		"meter_number", meterNumber,
		"units", delta.Units.String(),
		"total_dispensed_units", row.TotalDispensedUnits.String(),
		"total_token_count", row.TotalTokenCount)
	return FromDataModel(row), nil
}

// TotalsFunc computes a meter's totals from the stored facts.
type TotalsFunc func(ctx context.Context, meterNumber string) (Totals, error)

// Recompute replaces the derived totals of a meter with what compute returns.
// compute runs under the meter's lock so no mutation lands between the read
// of the facts and the overwrite. Only reconciliation calls it.
func (s *Service) Recompute(ctx context.Context, meterNumber string, compute TotalsFunc) (*MeterAggregate, error) {
	unlock, err := s.locker.Lock(ctx, meterNumber)
	if err != nil {
		return nil, fmt.Errorf("lock meter %s: %w", meterNumber, err)
	}
	defer unlock()

	totals, err := compute(ctx, meterNumber)
	if err != nil {
		return nil, fmt.Errorf("compute totals for %s: %w", meterNumber, err)
	}

	row, err := s.repo.OverwriteTotals(ctx, meterNumber, totals)
	if err != nil {
		return nil, fmt.Errorf("overwrite totals for %s: %w", meterNumber, err)
	}

	s.logger.Warn("aggregate totals recomputed",
		"meter_number", meterNumber,
		"total_dispensed_units", row.TotalDispensedUnits.String(),
		"total_token_count", row.TotalTokenCount,
		"total_amount_paid", row.TotalAmountPaid.String(),
		"total_payment_count", row.TotalPaymentCount)
	return FromDataModel(row), nil
}

func (s *Service) Get(ctx context.Context, meterNumber string) (*MeterAggregate, error) {
	row, err := s.repo.Get(ctx, meterNumber)
	if err != nil {
		return nil, errors.NewInternalError("failed to load aggregate", err)
	}
	if row == nil {
		return nil, errors.NewNotFoundError("Meter not found", errors.ErrCodeAggregateNotFound)
	}
	return FromDataModel(row), nil
}

func (s *Service) GetHomeSummary(ctx context.Context, meterNumber string) (*HomeSummary, error) {
	agg, err := s.Get(ctx, meterNumber)
	if err != nil {
		return nil, err
	}
	summary := agg.HomeSummary()
	return &summary, nil
}

func (s *Service) ListHomeSummaries(ctx context.Context) ([]HomeSummary, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, errors.NewInternalError("failed to list aggregates", err)
	}

	summaries := make([]HomeSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, FromDataModel(row).HomeSummary())
	}
	return summaries, nil
}
