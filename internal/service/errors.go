package service

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrProductNotFound         = errors.New("product not found")
	ErrDuplicateProduct        = errors.New("a product with this id already exists")
	ErrNoBackup                = errors.New("no product backup found")
	ErrRecommendationNotFound  = errors.New("recommendation not found")
	ErrDuplicateRecommendation = errors.New("a recommendation with this id already exists")
	ErrBannerNotFound          = errors.New("banner not found")
	ErrProtectedBanner         = errors.New("hero banners cannot be deleted")
	ErrUnknownLane             = errors.New("unknown banner lane")
	ErrUnknownStripFamily      = errors.New("unknown strip family")
	ErrRemoteUnavailable       = errors.New("remote store unavailable")
)

// FieldError describes one invalid input field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned before any write when input is rejected
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// orNil returns nil when no field failed
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

var validate = validator.New()

// validateStruct runs the struct tags and folds the result into a ValidationError
func validateStruct(v any) *ValidationError {
	verr := &ValidationError{}
	err := validate.Struct(v)
	if err == nil {
		return verr
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "gt":
		return "Value must be greater than " + fe.Param()
	case "gte":
		return "Value must be greater than or equal to " + fe.Param()
	case "lte":
		return "Value must be less than or equal to " + fe.Param()
	case "max":
		return "Value is too long"
	default:
		return "Invalid value"
	}
}

// IsValidation reports whether err is an input validation failure
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
