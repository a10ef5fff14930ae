package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"caneharvest/internal/types"
)

// ValidationError describes one failed field rule.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from non-blocking warnings.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether the result carries no blocking errors.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator and registers the domain rules:
//
//   - not_future: a date (types.Date or time.Time) that is not after today in
//     the validator's location.
//   - trimmed_nonempty: a string that is non-empty after trimming whitespace.
//
// Field names in errors use the json tag.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithClock overrides the time source used by not_future.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithLocation sets the timezone that defines "today".
func WithLocation(loc *time.Location) ValidatorOption {
	return func(v *Validator) {
		if loc != nil {
			v.loc = loc
		}
	}
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger, opts ...ValidatorOption) *Validator {
	v := &Validator{
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(v)
	}

	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// Present dates to the rules as time.Time so both required and
	// not_future see a comparable value. The zero date counts as absent.
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		d, ok := field.Interface().(types.Date)
		if !ok || d.IsZero() {
			return nil
		}
		return d.Time
	}, types.Date{})

	mustRegister(v.validate, "not_future", v.validateNotFuture)
	mustRegister(v.validate, "trimmed_nonempty", validateTrimmedNonEmpty)

	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %q: %v", tag, err))
	}
}

// Today returns the current calendar date in the validator's location.
func (v *Validator) Today() types.Date {
	return types.NewDate(v.now().In(v.loc))
}

func (v *Validator) validateNotFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return !types.NewDate(t).After(v.Today().Time)
}

func validateTrimmedNonEmpty(fl validator.FieldLevel) bool {
	if fl.Field().Kind() != reflect.String {
		return false
	}
	return strings.TrimSpace(fl.Field().String()) != ""
}

// ValidateStruct validates s and returns nil or a *types.AppError whose code
// reflects the first failing rule. All failures are listed under
// Details["validation_errors"].
func (v *Validator) ValidateStruct(s interface{}) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		fmt.Sprintf("request validation failed: %s", first.Message),
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// ValidateStructWithWarnings runs validation and collects every failure.
func (v *Validator) ValidateStructWithWarnings(s interface{}) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: the caller passed a non-struct.
		if v.logger != nil {
			v.logger.Error("struct validation misuse", "error", err)
		}
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeValidationFailed),
			Message: err.Error(),
		})
		return result
	}

	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    tagToErrorCode(fe.Tag()),
			Message: fieldErrorMessage(fe),
		})
	}
	return result
}

// tagToErrorCode maps a validator tag to an error code string.
func tagToErrorCode(tag string) string {
	switch tag {
	case "required", "trimmed_nonempty":
		return string(types.ErrCodeValidationMissingField)
	case "gt", "gte", "lt", "lte", "min", "max", "len", "oneof":
		return string(types.ErrCodeValidationOutOfRange)
	case "not_future":
		return string(types.ErrCodeValidationFutureDate)
	default:
		return string(types.ErrCodeValidationFailed)
	}
}

func fieldErrorMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "trimmed_nonempty":
		return fmt.Sprintf("%s must not be blank", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must have at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "not_future":
		return fmt.Sprintf("%s cannot be in the future", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
