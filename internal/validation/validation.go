// Package validation checks request payloads before they reach a service.
//
// Rules are declared with go-playground/validator struct tags. Each field may
// carry a `msg` tag holding the client-facing message reported for any rule
// that field breaks; field names in the result are the JSON names.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// FieldError is one entry of the `errors` list in a validation response.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is returned by handlers that need an error value carrying field errors.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var ErrInvalidTimestamp = errors.New("invalid timestamp")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("iso8601", func(fl validator.FieldLevel) bool {
		_, err := ParseTimestamp(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(fmt.Sprintf("register iso8601 validation: %v", err))
	}
	return v
}

// Validate runs the struct-tag rules on v and returns one FieldError per
// violated field, in declaration order. A nil result means v is valid.
func Validate(v any) []FieldError {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return []FieldError{{Field: "body", Message: err.Error()}}
	}

	typ := reflect.TypeOf(v)
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}

	seen := make(map[string]bool, len(invalid))
	out := make([]FieldError, 0, len(invalid))
	for _, fe := range invalid {
		if seen[fe.Field()] {
			continue
		}
		seen[fe.Field()] = true
		out = append(out, FieldError{Field: fe.Field(), Message: messageFor(typ, fe)})
	}
	return out
}

func messageFor(typ reflect.Type, fe validator.FieldError) string {
	if typ.Kind() == reflect.Struct {
		if field, ok := typ.FieldByName(fe.StructField()); ok {
			if msg := field.Tag.Get("msg"); msg != "" {
				return msg
			}
		}
	}

	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Valid email is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "iso8601":
		return fe.Field() + " must be a valid ISO 8601 timestamp"
	default:
		return fe.Field() + " is invalid"
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 timestamps plus the zone-less and
// date-only ISO 8601 forms browsers submit. Zone-less values are UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, value)
}

// NormalizeEmail trims and lower-cases an address before validation and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
