package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
	ErrorTypeExternal     ErrorType = "EXTERNAL_ERROR"
	ErrorTypeUnavailable  ErrorType = "UNAVAILABLE"
)

type ErrorCode string

const (
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidAmount    ErrorCode = "INVALID_AMOUNT"
	ErrCodeInvalidMeter     ErrorCode = "INVALID_METER"
	ErrCodeInvalidPhone     ErrorCode = "INVALID_PHONE"

	ErrCodeTokenGenerationExhausted ErrorCode = "TOKEN_GENERATION_EXHAUSTED"
	ErrCodeAggregateUpdateFailed    ErrorCode = "AGGREGATE_UPDATE_FAILED"
	ErrCodeDuplicatePayment         ErrorCode = "DUPLICATE_PAYMENT"
	ErrCodeVendQueueFull            ErrorCode = "VEND_QUEUE_FULL"

	ErrCodeMeterNotFound       ErrorCode = "METER_NOT_FOUND"
	ErrCodeMeterExists         ErrorCode = "METER_EXISTS"
	ErrCodeAggregateNotFound   ErrorCode = "AGGREGATE_NOT_FOUND"
	ErrCodeVendNotFound        ErrorCode = "VEND_NOT_FOUND"
	ErrCodeTransactionNotFound ErrorCode = "TRANSACTION_NOT_FOUND"

	ErrCodeGatewayTimeout ErrorCode = "GATEWAY_TIMEOUT"
	ErrCodeGatewayFailed  ErrorCode = "GATEWAY_FAILED"

	ErrCodeInvalidToken ErrorCode = "INVALID_TOKEN"
	ErrCodeTokenExpired ErrorCode = "TOKEN_EXPIRED"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"

	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {

			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code, so errors.Is works against the sentinels below.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternalError,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

func NewInvalidAmountError(message string) *AppError {
	return NewValidationError(message, ErrCodeInvalidAmount)
}

// NewTokenGenerationExhaustedError is transient: nothing was persisted and the whole vend may be retried.
func NewTokenGenerationExhaustedError(attempts int, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeUnavailable,
		Code:       ErrCodeTokenGenerationExhausted,
		Message:    fmt.Sprintf("could not obtain a unique token after %d attempts", attempts),
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewAggregateUpdateFailedError marks a vend that is durable but whose meter aggregate is stale.
func NewAggregateUpdateFailedError(meterNumber string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeAggregateUpdateFailed,
		Message:    fmt.Sprintf("vend recorded but aggregate for meter %s was not updated", meterNumber),
		Details:    map[string]string{"meter_number": meterNumber},
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

func NewDuplicatePaymentError(transID string) *AppError {
	return NewConflictError(fmt.Sprintf("transaction %s already recorded", transID), ErrCodeDuplicatePayment)
}

func NewGatewayTimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeGatewayTimeout,
		Message:    fmt.Sprintf("payment gateway %s timed out", operation),
		StatusCode: http.StatusGatewayTimeout,
		Cause:      cause,
	}
}

func NewGatewayError(operation string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       ErrCodeGatewayFailed,
		Message:    fmt.Sprintf("payment gateway %s failed", operation),
		StatusCode: http.StatusBadGateway,
		Cause:      cause,
	}
}

var (
	ErrInvalidAmount            = NewInvalidAmountError("amount must be a positive, finite number")
	ErrTokenGenerationExhausted = &AppError{Type: ErrorTypeUnavailable, Code: ErrCodeTokenGenerationExhausted, Message: "token generation exhausted", StatusCode: http.StatusServiceUnavailable}
	ErrAggregateUpdateFailed    = &AppError{Type: ErrorTypeInternal, Code: ErrCodeAggregateUpdateFailed, Message: "aggregate update failed", StatusCode: http.StatusInternalServerError}
	ErrDuplicatePayment         = NewConflictError("transaction already recorded", ErrCodeDuplicatePayment)
	ErrVendQueueFull            = &AppError{Type: ErrorTypeUnavailable, Code: ErrCodeVendQueueFull, Message: "vend queue is full", StatusCode: http.StatusServiceUnavailable}

	ErrMeterNotFound       = NewNotFoundError("Meter not found", ErrCodeMeterNotFound)
	ErrMeterExists         = NewConflictError("Meter already registered", ErrCodeMeterExists)
	ErrAggregateNotFound   = NewNotFoundError("Data not found", ErrCodeAggregateNotFound)
	ErrVendNotFound        = NewNotFoundError("Token not found", ErrCodeVendNotFound)
	ErrTransactionNotFound = NewNotFoundError("Transaction not found", ErrCodeTransactionNotFound)

	ErrGatewayTimeout = &AppError{Type: ErrorTypeExternal, Code: ErrCodeGatewayTimeout, Message: "payment gateway timed out", StatusCode: http.StatusGatewayTimeout}
	ErrGatewayFailed  = &AppError{Type: ErrorTypeExternal, Code: ErrCodeGatewayFailed, Message: "payment gateway failed", StatusCode: http.StatusBadGateway}

	ErrInvalidToken = NewUnauthorizedError("Invalid token", ErrCodeInvalidToken)
	ErrTokenExpired = NewUnauthorizedError("Token has expired", ErrCodeTokenExpired)
	ErrForbidden    = NewForbiddenError("Operator role required", ErrCodeForbidden)
)

func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    ErrorType   `json:"type"`
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
	}{
		Type:    e.Type,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
}
