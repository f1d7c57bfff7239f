package validator

import (
	"github.com/goccy/go-json"
)

// ValidationError - Errors for tags validation.
type ValidationError struct {
	Errors []*ValidationErrorResponse `json:"errors"`
}

// ValidationErrorResponse - Struct for a single validation failure.
type ValidationErrorResponse struct {
	FailedField string
	Tag         string
	Value       string
}

// NewValidationError - ValidationError constructor.
func NewValidationError(errors []*ValidationErrorResponse) *ValidationError {
	return &ValidationError{Errors: errors}
}

func (v *ValidationError) Error() string {
	data, err := json.Marshal(v)
	if err != nil {
		return "validation failed (error detail unavailable)"
	}

	return string(data)
}
