package aggregate

import (
	"time"

	"github.com/shopspring/decimal"
)

type HomeSummary struct {
	MeterNumber     string           `json:"meter_number"`
	LastUnits       *decimal.Decimal `json:"last_units"`
	LastUpdate      *time.Time       `json:"last_update"`
	LastAmount      *decimal.Decimal `json:"last_amount"`
	LastPhoneNumber *string          `json:"last_phone_number"`
}

type HomeSummariesResponse struct {
	Summaries []HomeSummary `json:"summaries"`
	Count     int           `json:"count"`
}
