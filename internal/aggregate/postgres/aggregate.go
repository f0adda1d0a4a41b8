package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/smartwater-vending/internal/aggregate"
	meterDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
)

type AggregateRepository struct {
	db *gorm.DB
}

func NewAggregateRepository(db *gorm.DB) aggregate.RepositoryAPI {
	return &AggregateRepository{db: db}
}

// ensure inserts an empty aggregate for the meter unless one exists. The
// unique meter_number index makes concurrent first touches collapse to one row.
func ensure(tx *gorm.DB, meterNumber string, now time.Time) error {
	row := meterDatamodel.MeterAggregate{
		MeterNumber:         meterNumber,
		TotalDispensedUnits: decimal.Zero,
		TotalAmountPaid:     decimal.Zero,
		UpdatedAt:           now,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meter_number"}},
		DoNothing: true,
	}).Create(&row).Error
}

func load(tx *gorm.DB, meterNumber string) (*meterDatamodel.MeterAggregate, error) {
	var row meterDatamodel.MeterAggregate
	if err := tx.Where("meter_number = ?", meterNumber).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// lockRow reads the aggregate with FOR UPDATE on postgres; sqlite has no row
// locks and serialises writers on its single connection instead.
func lockRow(tx *gorm.DB, meterNumber string) (*meterDatamodel.MeterAggregate, error) {
	return load(tx.Clauses(clause.Locking{Strength: "UPDATE"}), meterNumber)
}

func (r *AggregateRepository) GetOrCreate(ctx context.Context, meterNumber string) (*meterDatamodel.MeterAggregate, error) {
	var out *meterDatamodel.MeterAggregate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensure(tx, meterNumber, time.Now()); err != nil {
			return err
		}
		row, err := load(tx, meterNumber)
		out = row
		return err
	})
	return out, err
}

func (r *AggregateRepository) ApplyPayment(ctx context.Context, meterNumber string, delta aggregate.PaymentDelta) (*meterDatamodel.MeterAggregate, error) {
	var out *meterDatamodel.MeterAggregate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := ensure(tx, meterNumber, now); err != nil {
			return err
		}

		// totals are summed as decimals and written back whole; sqlite would
		// add NUMERIC columns in floating point
		current, err := lockRow(tx, meterNumber)
		if err != nil {
			return err
		}

		err = tx.Model(&meterDatamodel.MeterAggregate{}).
			Where("meter_number = ?", meterNumber).
			Updates(map[string]interface{}{
				"total_amount_paid":   current.TotalAmountPaid.Add(delta.Amount),
				"total_payment_count": current.TotalPaymentCount + 1,
				"last_entered_amount": delta.Amount,
				"last_payer":          delta.Payer,
				"last_payment_time":   delta.At,
				"updated_at":          now,
			}).Error
		if err != nil {
			return err
		}

		row, err := load(tx, meterNumber)
		out = row
		return err
	})
	return out, err
}

func (r *AggregateRepository) ApplyVend(ctx context.Context, meterNumber string, delta aggregate.VendDelta) (*meterDatamodel.MeterAggregate, error) {
	var out *meterDatamodel.MeterAggregate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := ensure(tx, meterNumber, now); err != nil {
			return err
		}

		current, err := lockRow(tx, meterNumber)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"total_dispensed_units": current.TotalDispensedUnits.Add(delta.Units),
			"total_token_count":     current.TotalTokenCount + 1,
			"last_entered_units":    delta.Units,
			"last_update_at":        delta.At,
			"last_token_time":       delta.At,
			"updated_at":            now,
		}
		if delta.Amount != nil {
			updates["last_entered_amount"] = *delta.Amount
		}
		if delta.Payer != "" {
			updates["last_payer"] = delta.Payer
		}

		err = tx.Model(&meterDatamodel.MeterAggregate{}).
			Where("meter_number = ?", meterNumber).
			Updates(updates).Error
		if err != nil {
			return err
		}

		row, err := load(tx, meterNumber)
		out = row
		return err
	})
	return out, err
}

func (r *AggregateRepository) OverwriteTotals(ctx context.Context, meterNumber string, totals aggregate.Totals) (*meterDatamodel.MeterAggregate, error) {
	var out *meterDatamodel.MeterAggregate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		if err := ensure(tx, meterNumber, now); err != nil {
			return err
		}

		err := tx.Model(&meterDatamodel.MeterAggregate{}).
			Where("meter_number = ?", meterNumber).
			Updates(map[string]interface{}{
				"total_dispensed_units": totals.DispensedUnits,
				"total_token_count":     totals.TokenCount,
				"total_amount_paid":     totals.AmountPaid,
				"total_payment_count":   totals.PaymentCount,
				"last_token_time":       totals.LastTokenTime,
				"last_payment_time":     totals.LastPaymentAt,
				"updated_at":            now,
			}).Error
		if err != nil {
			return err
		}

		row, err := load(tx, meterNumber)
		out = row
		return err
	})
	return out, err
}

func (r *AggregateRepository) Get(ctx context.Context, meterNumber string) (*meterDatamodel.MeterAggregate, error) {
	row, err := load(r.db.WithContext(ctx), meterNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func (r *AggregateRepository) List(ctx context.Context) ([]*meterDatamodel.MeterAggregate, error) {
	var rows []*meterDatamodel.MeterAggregate
	err := r.db.WithContext(ctx).Order("meter_number ASC").Find(&rows).Error
	return rows, err
}
