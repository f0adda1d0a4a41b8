// Package reconcile compares the meter aggregates against the vend and
// payment facts they are derived from, repairs drifted totals and finds
// payments that were never vended.
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
)

// Drift is one meter whose aggregate totals disagree with its facts.
type Drift struct {
	MeterNumber       string          `db:"meter_number" json:"meter_number"`
	AggregateUnits    decimal.Decimal `db:"aggregate_units" json:"aggregate_units"`
	FactUnits         decimal.Decimal `db:"fact_units" json:"fact_units"`
	AggregateTokens   int64           `db:"aggregate_tokens" json:"aggregate_tokens"`
	FactTokens        int64           `db:"fact_tokens" json:"fact_tokens"`
	AggregateAmount   decimal.Decimal `db:"aggregate_amount" json:"aggregate_amount"`
	FactAmount        decimal.Decimal `db:"fact_amount" json:"fact_amount"`
	AggregatePayments int64           `db:"aggregate_payments" json:"aggregate_payments"`
	FactPayments      int64           `db:"fact_payments" json:"fact_payments"`
}

func (d Drift) drifted() bool {
	return !d.AggregateUnits.Round(2).Equal(d.FactUnits.Round(2)) ||
		d.AggregateTokens != d.FactTokens ||
		!d.AggregateAmount.Round(2).Equal(d.FactAmount.Round(2)) ||
		d.AggregatePayments != d.FactPayments
}

// PendingPayment is a recorded payment with no vend linked to it.
type PendingPayment struct {
	PaymentID   int64           `db:"id" json:"payment_id"`
	TransID     string          `db:"trans_id" json:"trans_id"`
	MeterNumber string          `db:"bill_ref_number" json:"meter_number"`
	PhoneNumber string          `db:"msisdn" json:"phone_number"`
	Amount      decimal.Decimal `db:"trans_amount" json:"amount"`
}

type Recomputer interface {
	Recompute(ctx context.Context, meterNumber string, compute aggregate.TotalsFunc) (*aggregate.MeterAggregate, error)
}

type Vender interface {
	Vend(ctx context.Context, req vending.VendRequest) (*vending.VendRecord, error)
}

type Service struct {
	db         *sqlx.DB
	aggregates Recomputer
	logger     *slog.Logger
}

func NewService(db *sqlx.DB, aggregates Recomputer, logger *slog.Logger) *Service {
	return &Service{
		db:         db,
		aggregates: aggregates,
		logger:     logger,
	}
}

const driftQuery = `
WITH meters AS (
    SELECT meter_number FROM meter_aggregates
    UNION SELECT meter_number FROM vend_tokens
    UNION SELECT bill_ref_number FROM mpesa_transactions
),
vends AS (
    SELECT meter_number, SUM(units) AS units, COUNT(*) AS tokens
    FROM vend_tokens GROUP BY meter_number
),
payments AS (
    SELECT bill_ref_number AS meter_number, SUM(trans_amount) AS amount, COUNT(*) AS payments
    FROM mpesa_transactions GROUP BY bill_ref_number
)
SELECT m.meter_number,
    COALESCE(a.total_dispensed_units, 0) AS aggregate_units,
    COALESCE(v.units, 0) AS fact_units,
    COALESCE(a.total_token_count, 0) AS aggregate_tokens,
    COALESCE(v.tokens, 0) AS fact_tokens,
    COALESCE(a.total_amount_paid, 0) AS aggregate_amount,
    COALESCE(p.amount, 0) AS fact_amount,
    COALESCE(a.total_payment_count, 0) AS aggregate_payments,
    COALESCE(p.payments, 0) AS fact_payments
FROM meters m
LEFT JOIN meter_aggregates a ON a.meter_number = m.meter_number
LEFT JOIN vends v ON v.meter_number = m.meter_number
LEFT JOIN payments p ON p.meter_number = m.meter_number
ORDER BY m.meter_number`

// FindDrift reports every meter whose totals differ from the sums and counts
// of its vend and payment records.
func (s *Service) FindDrift(ctx context.Context) ([]Drift, error) {
	var rows []Drift
	if err := s.db.SelectContext(ctx, &rows, driftQuery); err != nil {
		return nil, fmt.Errorf("drift query: %w", err)
	}

	var drifts []Drift
	for _, row := range rows {
		if row.drifted() {
			drifts = append(drifts, row)
		}
	}
	s.logger.Info("drift check completed", "meters", len(rows), "drifted", len(drifts))
	return drifts, nil
}

// Facts derives a meter's totals from its vend and payment records.
func (s *Service) Facts(ctx context.Context, meterNumber string) (aggregate.Totals, error) {
	var totals aggregate.Totals

	var vends struct {
		Units  decimal.Decimal `db:"units"`
		Tokens int64           `db:"tokens"`
	}
	err := s.db.GetContext(ctx, &vends, s.db.Rebind(
		`SELECT COALESCE(SUM(units), 0) AS units, COUNT(*) AS tokens FROM vend_tokens WHERE meter_number = ?`), meterNumber)
	if err != nil {
		return totals, fmt.Errorf("sum vends: %w", err)
	}

	var payments struct {
		Amount   decimal.Decimal `db:"amount"`
		Payments int64           `db:"payments"`
	}
	err = s.db.GetContext(ctx, &payments, s.db.Rebind(
		`SELECT COALESCE(SUM(trans_amount), 0) AS amount, COUNT(*) AS payments FROM mpesa_transactions WHERE bill_ref_number = ?`), meterNumber)
	if err != nil {
		return totals, fmt.Errorf("sum payments: %w", err)
	}

	lastToken, err := s.latest(ctx, `SELECT "timestamp" FROM vend_tokens WHERE meter_number = ? ORDER BY "timestamp" DESC LIMIT 1`, meterNumber)
	if err != nil {
		return totals, fmt.Errorf("latest vend: %w", err)
	}
	lastPayment, err := s.latest(ctx, `SELECT created_at FROM mpesa_transactions WHERE bill_ref_number = ? ORDER BY created_at DESC LIMIT 1`, meterNumber)
	if err != nil {
		return totals, fmt.Errorf("latest payment: %w", err)
	}

	totals.DispensedUnits = vends.Units.Round(2)
	totals.TokenCount = vends.Tokens
	totals.AmountPaid = payments.Amount.Round(2)
	totals.PaymentCount = payments.Payments
	totals.LastTokenTime = lastToken
	totals.LastPaymentAt = lastPayment
	return totals, nil
}

func (s *Service) latest(ctx context.Context, query, meterNumber string) (*time.Time, error) {
	var at sql.NullTime
	err := s.db.GetContext(ctx, &at, s.db.Rebind(query), meterNumber)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !at.Valid {
		return nil, nil
	}
	return &at.Time, nil
}

// Repair overwrites the meter's totals with the values derived from its facts.
func (s *Service) Repair(ctx context.Context, meterNumber string) (*aggregate.MeterAggregate, error) {
	agg, err := s.aggregates.Recompute(ctx, meterNumber, s.Facts)
	if err != nil {
		s.logger.Error("aggregate repair failed", "meter_number", meterNumber, "error", err)
		return nil, err
	}
	return agg, nil
}

// RepairAll repairs every drifted meter and returns how many were fixed.
func (s *Service) RepairAll(ctx context.Context) (int, error) {
	drifts, err := s.FindDrift(ctx)
	if err != nil {
		return 0, err
	}
	repaired := 0
	for _, d := range drifts {
		if _, err := s.Repair(ctx, d.MeterNumber); err != nil {
			return repaired, err
		}
		repaired++
	}
	return repaired, nil
}

// PendingVends lists payments, oldest first, that have no vend linked to them.
func (s *Service) PendingVends(ctx context.Context, limit int) ([]PendingPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []PendingPayment
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
SELECT p.id, p.trans_id, p.bill_ref_number, p.msisdn, p.trans_amount
FROM mpesa_transactions p
LEFT JOIN vend_tokens v ON v.payment_id = p.id
WHERE v.id IS NULL
ORDER BY p.id
LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("pending vends query: %w", err)
	}
	return rows, nil
}

type RevendReport struct {
	Vended int      `json:"vended"`
	Failed []string `json:"failed,omitempty"`
}

// Revend vends every pending payment. Each vend carries its payment id so a
// payment vended concurrently elsewhere is not vended twice.
func (s *Service) Revend(ctx context.Context, vender Vender, limit int) (*RevendReport, error) {
	pending, err := s.PendingVends(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &RevendReport{}
	for _, p := range pending {
		paymentID := p.PaymentID
		record, err := vender.Vend(ctx, vending.VendRequest{
			MeterNumber: p.MeterNumber,
			PhoneNumber: p.PhoneNumber,
			Amount:      p.Amount,
			PaymentID:   &paymentID,
		})
		if err != nil && record == nil {
			s.logger.Error("revend failed", "trans_id", p.TransID, "payment_id", p.PaymentID, "error", err)
			report.Failed = append(report.Failed, p.TransID)
			continue
		}
		if err != nil {
			s.logger.Warn("revend left a stale aggregate", "trans_id", p.TransID, "error", err)
		}
		report.Vended++
	}

	s.logger.Info("revend completed", "pending", len(pending), "vended", report.Vended, "failed", len(report.Failed))
	return report, nil
}
