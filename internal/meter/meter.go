package meter

import (
	"strings"
	"time"

	meterDatamodel "github.com/frahmantamala/smartwater-vending/internal/core/datamodel/meter"
)

type Meter struct {
	ID           int64     `json:"id"`
	MeterNumber  string    `json:"meter_number"`
	CustomerName *string   `json:"customer_name,omitempty"`
	PhoneNumber  *string   `json:"phone_number,omitempty"`
	Email        *string   `json:"email,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func FromDataModel(m *meterDatamodel.Meter) *Meter {
	return &Meter{
		ID:           m.ID,
		MeterNumber:  m.MeterNumber,
		CustomerName: m.CustomerName,
		PhoneNumber:  m.PhoneNumber,
		Email:        m.Email,
		CreatedAt:    m.CreatedAt,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
