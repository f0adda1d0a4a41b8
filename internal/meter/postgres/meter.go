package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "github.com/frahmantamala/smartwater-vending/internal"
	meterDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
	"github.com/frahmantamala/smartwater-vending/internal/meter"
)

type MeterRepository struct {
	db *gorm.DB
}

func NewMeterRepository(db *gorm.DB) meter.RepositoryAPI {
	return &MeterRepository{db: db}
}

func (r *MeterRepository) Create(ctx context.Context, m *meterDatamodel.Meter) error {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "meter_number"}},
		DoNothing: true,
	}).Create(m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrMeterExists
	}
	return nil
}

func (r *MeterRepository) GetByNumber(ctx context.Context, meterNumber string) (*meterDatamodel.Meter, error) {
	var m meterDatamodel.Meter
	err := r.db.WithContext(ctx).Where("meter_number = ?", meterNumber).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MeterRepository) List(ctx context.Context) ([]*meterDatamodel.Meter, error) {
	var meters []*meterDatamodel.Meter
	err := r.db.WithContext(ctx).Order("meter_number ASC").Find(&meters).Error
	return meters, err
}
