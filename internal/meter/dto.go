package meter

import (
	"regexp"
	"strings"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/frahmantamala/smartwater-vending/internal/core/common/validation"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

type RegisterMeterRequest struct {
	MeterNumber  string `json:"meter_number"`
	CustomerName string `json:"customer_name"`
	PhoneNumber  string `json:"phone_number"`
	Email        string `json:"email"`
}

func (r *RegisterMeterRequest) Validate() *errors.AppError {
	r.MeterNumber = strings.TrimSpace(r.MeterNumber)

	if appErr := validation.ValidateMeterNumber(r.MeterNumber); appErr != nil {
		return appErr
	}
	if r.PhoneNumber != "" {
		if appErr := validation.ValidatePhoneNumber(r.PhoneNumber); appErr != nil {
			return appErr
		}
	}

	validator := validation.NewValidator()
	validator.Field("customer_name", r.CustomerName).MaxLength(100)
	validator.Field("email", r.Email).
		MaxLength(100).
		Matches(emailPattern, errors.ErrCodeValidationFailed)
	return validator.Validate()
}

type MeterListResponse struct {
	Meters []*Meter `json:"meters"`
	Count  int      `json:"count"`
}
