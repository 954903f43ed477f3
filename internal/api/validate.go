package api

import (
	"github.com/go-playground/validator/v10"

	"github.com/matheus3301/wpphub/internal/apperr"
)

// Validator adapts go-playground/validator to echo.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a struct validator.
func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i any) error {
	if err := cv.v.Struct(i); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "validate", err)
	}
	return nil
}
