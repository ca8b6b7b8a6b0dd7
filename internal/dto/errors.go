package dto

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// BaseError единый формат ошибки локального API
// Code: машинный код (snake_case), Message: короткое описание для UI
type BaseError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError ошибка по конкретному полю запроса
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
}

func NewValidationError(msg string, fields []FieldError) BaseError {
	return BaseError{Code: "validation_error", Message: msg, Fields: fields}
}

func NewNotFoundError(msg string) BaseError {
	return BaseError{Code: "not_found", Message: msg}
}

func NewConflictError(msg string) BaseError {
	return BaseError{Code: "conflict", Message: msg}
}

func NewRateLimitedError(msg string) BaseError {
	return BaseError{Code: "rate_limited", Message: msg}
}

// NewUpstreamError: внешний API заказов ответил ошибкой или недоступен
func NewUpstreamError(details string) BaseError {
	return BaseError{Code: "upstream_error", Message: "order api request failed", Details: details}
}

func NewInternalError(details string) BaseError {
	return BaseError{Code: "internal_error", Message: "internal server error", Details: details}
}

// FieldsFrom раскладывает ошибку биндинга gin по полям
func FieldsFrom(err error) []FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make([]FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Message: "failed on " + fe.Tag(),
			Tag:     fe.Tag(),
		})
	}
	return out
}
