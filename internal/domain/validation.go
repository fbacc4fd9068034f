package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(fld.Name[:1]) + fld.Name[1:]
		}
		return name
	})
	// Registration only fails on empty tags or nil funcs.
	_ = v.RegisterValidation("trimmed_len", trimmedLen)
	_ = v.RegisterValidation("password_strength", passwordStrength)
	return v
}

// trimmedLen checks "min:max" runes after trimming surrounding whitespace.
func trimmedLen(fl validator.FieldLevel) bool {
	lo, hi, ok := parseRange(fl.Param())
	if !ok {
		return false
	}
	n := utf8.RuneCountInString(strings.TrimSpace(fl.Field().String()))
	return n >= lo && n <= hi
}

// passwordStrength requires at least one lowercase letter, one uppercase letter and one digit.
func passwordStrength(fl validator.FieldLevel) bool {
	var lower, upper, digit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return lower && upper && digit
}

func parseRange(param string) (int, int, bool) {
	parts := strings.SplitN(param, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(parts[0])
	hi, err2 := strconv.Atoi(parts[1])
	return lo, hi, err1 == nil && err2 == nil
}

// Validate checks a form DTO and returns a *ValidationError describing every failing field.
func Validate(form any) error {
	err := formValidator.Struct(form)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating %T: %w", form, err)
	}
	out := &ValidationError{Message: "Please fix the highlighted fields", Errors: map[string][]string{}}
	for _, fe := range fieldErrs {
		out.Errors[fe.Field()] = append(out.Errors[fe.Field()], fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	label := strings.ToUpper(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "url":
		return "Please enter a valid URL"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be less than %s characters", label, fe.Param())
	case "eqfield":
		return "Passwords don't match"
	case "password_strength":
		return "Password must contain at least one uppercase letter, one lowercase letter, and one number"
	case "trimmed_len":
		lo, hi, _ := parseRange(fe.Param())
		if lo <= 1 {
			return fmt.Sprintf("%s must be between 1 and %d characters", label, hi)
		}
		return fmt.Sprintf("%s must be between %d and %d characters", label, lo, hi)
	}
	return fmt.Sprintf("%s is invalid", label)
}
