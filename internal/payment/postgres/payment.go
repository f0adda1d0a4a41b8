package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	paymentDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/smartwater-vending/internal/payment"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

// Insert relies on the unique trans_id index: a redelivered transaction
// affects no rows instead of failing.
func (r *PaymentRepository) Insert(ctx context.Context, row *paymentDatamodel.MpesaTransaction) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "trans_id"}},
		DoNothing: true,
	}).Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PaymentRepository) GetByTransID(ctx context.Context, transID string) (*paymentDatamodel.MpesaTransaction, error) {
	var row paymentDatamodel.MpesaTransaction
	err := r.db.WithContext(ctx).Where("trans_id = ?", transID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *PaymentRepository) List(ctx context.Context, limit int) ([]*paymentDatamodel.MpesaTransaction, error) {
	var rows []*paymentDatamodel.MpesaTransaction
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *PaymentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&paymentDatamodel.MpesaTransaction{}).Count(&n).Error
	return n, err
}
