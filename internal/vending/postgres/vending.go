package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	vendingDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/vending"
	"github.com/frahmantamala/smartwater-vending/internal/vending"
)

const uniqueViolation = "23505"

type VendingRepository struct {
	db *gorm.DB
}

func NewVendingRepository(db *gorm.DB) vending.RepositoryAPI {
	return &VendingRepository{db: db}
}

// Create inserts the vend, reporting unique violations as vending.ErrTokenTaken
// or vending.ErrPaymentAlreadyVended depending on the constraint hit.
func (r *VendingRepository) Create(ctx context.Context, t *vendingDatamodel.VendToken) error {
	err := r.db.WithContext(ctx).Create(t).Error
	if err == nil {
		return nil
	}
	if constraint, ok := uniqueConstraint(err); ok {
		if strings.Contains(constraint, "payment_id") {
			return vending.ErrPaymentAlreadyVended
		}
		return vending.ErrTokenTaken
	}
	return err
}

// uniqueConstraint extracts the violated constraint from postgres errors, or
// the "table.column" text sqlite reports.
func uniqueConstraint(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName, pgErr.Code == uniqueViolation
	}
	const sqliteUnique = "UNIQUE constraint failed: "
	msg := err.Error()
	if i := strings.Index(msg, sqliteUnique); i >= 0 {
		return msg[i+len(sqliteUnique):], true
	}
	return "", false
}

func (r *VendingRepository) TokenExists(ctx context.Context, token string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&vendingDatamodel.VendToken{}).
		Where("token = ?", token).
		Count(&count).Error
	return count > 0, err
}

func (r *VendingRepository) GetByToken(ctx context.Context, token string) (*vendingDatamodel.VendToken, error) {
	return r.first(ctx, "token = ?", token)
}

func (r *VendingRepository) GetByPaymentID(ctx context.Context, paymentID int64) (*vendingDatamodel.VendToken, error) {
	return r.first(ctx, "payment_id = ?", paymentID)
}

func (r *VendingRepository) first(ctx context.Context, query string, arg interface{}) (*vendingDatamodel.VendToken, error) {
	var row vendingDatamodel.VendToken
	err := r.db.WithContext(ctx).Where(query, arg).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *VendingRepository) ListByMeter(ctx context.Context, meterNumber string, limit int) ([]*vendingDatamodel.VendToken, error) {
	var rows []*vendingDatamodel.VendToken
	err := r.db.WithContext(ctx).
		Where("meter_number = ?", meterNumber).
		Order("timestamp DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
