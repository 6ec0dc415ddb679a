package validator

import (
	"context"
	"errors"
	"regexp"

	"github.com/go-playground/validator"
)

var (
	global      *validator.Validate
	nameRegex   = regexp.MustCompile(`^[a-zA-Z\s.'-]+$`)
	mobileRegex = regexp.MustCompile(`^[6-9]\d{9}$`)
)

const (
	ErrInvalidFormat      = "Invalid format"
	ErrFieldRequired      = "Field is required"
	ErrFieldExceedsMaxLen = "Field exceeds maximum length"
	ErrFieldBelowMinLen   = "Field is below minimum length"
	ErrFieldExceedsMaxVal = "Field exceeds maximum value"
	ErrFieldBelowMinVal   = "Field is below minimum value"
	ErrUnknownValidation  = "Unknown validation error"
)

func init() {
	SetValidator(New())
}

func New() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("person_name", validatePersonName)
	_ = v.RegisterValidation("in_mobile", validateMobile)
	return v
}

func SetValidator(v *validator.Validate) {
	global = v
}

func Validator() *validator.Validate {
	return global
}

func validatePersonName(fl validator.FieldLevel) bool {
	return nameRegex.MatchString(fl.Field().String())
}

// validateMobile accepts a 10-digit Indian mobile number.
func validateMobile(fl validator.FieldLevel) bool {
	return mobileRegex.MatchString(fl.Field().String())
}

func Validate(ctx context.Context, structure any) error {
	return parseValidationErrors(Validator().StructCtx(ctx, structure))
}

func parseValidationErrors(err error) error {
	if err == nil {
		return nil
	}
	vErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	if len(vErrors) == 0 {
		return nil
	}
	ve := vErrors[0]
	var msg string
	switch ve.Tag() {
	case "required":
		msg = ErrFieldRequired
	case "max":
		msg = ErrFieldExceedsMaxLen
	case "min":
		msg = ErrFieldBelowMinLen
	case "lt", "lte":
		msg = ErrFieldExceedsMaxVal
	case "gt", "gte":
		msg = ErrFieldBelowMinVal
	case "email":
		msg = "Invalid email address"
	case "uuid", "uuid4":
		msg = "Invalid identifier"
	case "person_name":
		msg = "Name contains invalid characters"
	case "in_mobile":
		msg = "Enter a valid 10-digit Indian mobile number"
	case "oneof":
		msg = ErrInvalidFormat
	default:
		msg = ErrUnknownValidation
	}
	return errors.New(msg + ": " + ve.Namespace())
}
