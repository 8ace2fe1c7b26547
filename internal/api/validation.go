package api

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/welldanyogia/colancer-registry/internal/naming"
)

// Validator instance for request validation
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterValidation("label", func(fl validator.FieldLevel) bool {
		return naming.IsValidFormat(fl.Field().String())
	})
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// GetValidator returns the validator instance
func GetValidator() *validator.Validate {
	return validate
}

// Validate runs struct validation and returns per-field messages (nil when valid)
func Validate(v interface{}) map[string][]string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string][]string{"_": {err.Error()}}
	}

	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		field := fieldPath(fe.Namespace())
		details[field] = append(details[field], message(fe))
	}
	return details
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "eth_addr":
		return "must be a 0x-prefixed 20-byte hex address"
	case "label":
		return "must be 3-63 characters of lowercase letters, digits and single hyphens, not starting or ending with a hyphen"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "dive", "gt":
		return "must not be empty"
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}
