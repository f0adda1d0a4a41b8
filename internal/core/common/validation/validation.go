package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	errors "github.com/frahmantamala/smartwater-vending/internal"
	"github.com/shopspring/decimal"
)

// Column widths of meter references and payer phones. Gateways may deliver
// masked or hashed MSISDNs, so the phone width fits a hex SHA-256.
const (
	MaxMeterLength = 50
	MaxPhoneLength = 64
)

var (
	meterPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]FieldValidator, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		switch v := value.(type) {
		case string:
			if strings.TrimSpace(v) == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case *string:
			if v == nil || strings.TrimSpace(*v) == "" {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		case time.Time:
			if v.IsZero() {
				return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return fv
}

// Positive rejects zero and negative decimals.
func (fv *FieldValidator) Positive(code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(decimal.Decimal); ok && !v.IsPositive() {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s must be positive", fv.FieldName), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinDecimal(min decimal.Decimal, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(decimal.Decimal); ok && v.LessThan(min) {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s must be at least %s", fv.FieldName, min.String()), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MinLength(min int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok {
			if len(v) < min {
				message := fmt.Sprintf("%s must be at least %d characters", fv.FieldName, min)
				return errors.NewValidationFieldError(fv.FieldName, message, errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok {
			if len(v) > max {
				message := fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max)
				return errors.NewValidationFieldError(fv.FieldName, message, errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Matches(pattern *regexp.Regexp, code errors.ErrorCode) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && v != "" && !pattern.MatchString(v) {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s has an invalid format", fv.FieldName), code)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Custom(validator func(interface{}) *errors.AppError) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			appErr := validator(field.Value)
			if appErr == nil {
				continue
			}
			if details, ok := appErr.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
				continue
			}
			validationErrors = append(validationErrors, errors.ValidationError{
				Field:   field.FieldName,
				Message: appErr.Message,
				Code:    string(appErr.Code),
			})
		}
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}

func ValidateMeterNumber(meter string) *errors.AppError {
	validator := NewValidator()
	validator.Field("meter_number", meter).
		Required().
		Matches(meterPattern, errors.ErrCodeInvalidMeter)
	return validator.Validate()
}

func ValidatePhoneNumber(phone string) *errors.AppError {
	validator := NewValidator()
	validator.Field("phone_number", phone).
		Required().
		Matches(phonePattern, errors.ErrCodeInvalidPhone)
	return validator.Validate()
}

// VendTarget adds the rules every vendable meter and payer phone must pass.
// Payment ingestion applies the same rules, so a stored payment can always
// be vended.
func (v *ValidationBuilder) VendTarget(meterField, meter, phoneField, phone string) *ValidationBuilder {
	v.Field(meterField, meter).
		Required().
		MaxLength(MaxMeterLength)
	v.Field(phoneField, phone).
		Required().
		MaxLength(MaxPhoneLength)
	return v
}

// ValidateVendInput checks the preconditions shared by every vend entry point.
func ValidateVendInput(meter, phone string, amount decimal.Decimal) *errors.AppError {
	validator := NewValidator().VendTarget("meter_number", meter, "phone_number", phone)
	validator.Field("amount", amount).
		Positive(errors.ErrCodeInvalidAmount)
	return validator.Validate()
}

// ValidateOperatorVendInput adds format checks for meters and phones typed
// in by an operator.
func ValidateOperatorVendInput(meter, phone string, amount decimal.Decimal) *errors.AppError {
	if appErr := ValidateVendInput(meter, phone, amount); appErr != nil {
		return appErr
	}
	validator := NewValidator()
	validator.Field("meter_number", meter).
		Matches(meterPattern, errors.ErrCodeInvalidMeter)
	validator.Field("phone_number", phone).
		Matches(phonePattern, errors.ErrCodeInvalidPhone)
	return validator.Validate()
}
