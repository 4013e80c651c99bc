package core

import (
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"teamnetwork/internal/types"
)

// Validator wraps go-playground/validator and translates its failures
// into the platform's structured AppError format, keyed by the JSON
// field name clients actually sent.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with JSON-tag field naming.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates a struct against its validate tags. On
// failure it returns a *types.AppError with code "validation_failed"
// and a details map of field -> human-readable constraint.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the caller passed a non-struct.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "invalid value passed to validator", err)
	}

	details := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		details[fe.Field()] = describeFieldError(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationFailed,
		"request validation failed",
		nil,
		details,
	)
}

// describeFieldError renders a single validation failure as a short
// client-facing message.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	default:
		return "failed constraint: " + fe.Tag()
	}
}
