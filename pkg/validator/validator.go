// ==============================================================================
// VALIDATOR PACKAGE - pkg/validator/validator.go
// ==============================================================================
package validator

import (
	"fmt"
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	evmAddressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	txHashPattern     = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	handlePattern     = regexp.MustCompile(`^@?[a-z0-9_]{3,20}$`)
	dotpayIDPattern   = regexp.MustCompile(`(?i)^dp\d{6,}$`)
)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := &Validator{
		validate: validator.New(),
	}
	v.registerCustomValidations()
	return v
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		// Format validation errors
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMessages []string
			for _, e := range validationErrors {
				errMessages = append(errMessages, fmt.Sprintf(
					"Field '%s' failed validation '%s'",
					e.Field(),
					e.Tag(),
				))
			}
			return fmt.Errorf("validation failed: %v", errMessages)
		}
		return err
	}
	return nil
}

// ValidateStructured returns a map of field -> error message for frontend usage
func (v *Validator) ValidateStructured(i interface{}) map[string]string {
	errs := make(map[string]string)
	if err := v.validate.Struct(i); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			for _, e := range validationErrors {
				msg := fmt.Sprintf("failed validation on '%s'", e.Tag())
				switch e.Tag() {
				case "required":
					msg = "This field is required"
				case "max":
					msg = fmt.Sprintf("Must be at most %s characters", e.Param())
				case "evm_address":
					msg = "Invalid wallet address"
				case "tx_hash":
					msg = "Invalid transaction hash"
				case "handle":
					msg = "Invalid username"
				case "dotpay_id":
					msg = "Invalid DotPay ID"
				case "oneof":
					msg = fmt.Sprintf("Must be one of: %s", e.Param())
				}
				errs[e.Field()] = msg
			}
		} else {
			errs["_global"] = err.Error()
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// IsEVMAddress reports whether s is a 0x-prefixed 20-byte hex address.
func IsEVMAddress(s string) bool { return evmAddressPattern.MatchString(strings.TrimSpace(s)) }

// IsTxHash reports whether s is a 0x-prefixed 32-byte hex hash.
func IsTxHash(s string) bool { return txHashPattern.MatchString(strings.TrimSpace(s)) }

// IsHandle reports whether s is a username, with or without the leading @.
func IsHandle(s string) bool {
	return handlePattern.MatchString(strings.ToLower(strings.TrimSpace(s)))
}

// IsDotPayID reports whether s is a DP-prefixed internal identifier.
func IsDotPayID(s string) bool { return dotpayIDPattern.MatchString(strings.TrimSpace(s)) }

func (v *Validator) registerCustomValidations() {
	// Register decimal.Decimal to be validated as float64 for gt/lt checks
	v.validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if val, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := val.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.validate.RegisterValidation("evm_address", func(fl validator.FieldLevel) bool {
		return IsEVMAddress(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("tx_hash", func(fl validator.FieldLevel) bool {
		return IsTxHash(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("handle", func(fl validator.FieldLevel) bool {
		return IsHandle(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("dotpay_id", func(fl validator.FieldLevel) bool {
		return IsDotPayID(fl.Field().String())
	})
}

// Sanitize cleans string input to prevent XSS attacks
func Sanitize(input string) string {
	return html.EscapeString(strings.TrimSpace(input))
}
