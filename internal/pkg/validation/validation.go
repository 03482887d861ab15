// Package validation wires custom rules into gin's validator and turns
// binding failures into field level messages.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/aiassist/core/internal/pkg/apperr"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var errorMessages = map[string]string{
	"required":       "The field '%s' is required.",
	"email":          "The field '%s' must be a valid email address.",
	"min":            "The field '%s' must be at least %s characters long.",
	"max":            "The field '%s' must be no longer than %s characters.",
	"gte":            "The field '%s' must be greater than or equal to %s.",
	"lte":            "The field '%s' must be less than or equal to %s.",
	"oneof":          "The field '%s' must be one of [%s].",
	"eqfield":        "The field '%s' must match %s.",
	"notblank":       "The field '%s' must not be blank.",
	"strongpassword": "The field '%s' must contain at least one uppercase letter, one lowercase letter and one number.",
}

var setupOnce sync.Once

// Setup registers the custom rules on gin's default validator. It is safe to
// call more than once.
func Setup() {
	setupOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			Register(v)
		}
	})
}

// Register installs the custom rules and json field naming on v.
func Register(v *validator.Validate) {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", notBlank)
	_ = v.RegisterValidation("strongpassword", strongPassword)
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// StrongPassword reports whether s has an upper case letter, a lower case
// letter and a digit.
func StrongPassword(s string) bool {
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

func strongPassword(fl validator.FieldLevel) bool {
	return StrongPassword(fl.Field().String())
}

func parseMessage(e validator.FieldError) string {
	if msg, ok := errorMessages[e.Tag()]; ok {
		if strings.Count(msg, "%s") == 2 {
			return fmt.Sprintf(msg, e.Field(), e.Param())
		}
		return fmt.Sprintf(msg, e.Field())
	}
	return fmt.Sprintf("Field '%s' is invalid: %s", e.Field(), e.Tag())
}

// Messages maps json field names to readable messages. Errors that are not
// validator errors produce a single "body" entry.
func Messages(err error) map[string]string {
	out := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			out[e.Field()] = parseMessage(e)
		}
		return out
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		out[typeErr.Field] = fmt.Sprintf("The field '%s' has the wrong type.", typeErr.Field)
	case errors.As(err, &syntaxErr):
		out["body"] = "Request body is not valid JSON."
	default:
		out["body"] = err.Error()
	}
	return out
}

// AppError converts a binding failure into a 400 VALIDATION_ERROR carrying
// the per-field messages.
func AppError(err error) *apperr.Error {
	fields := Messages(err)
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	message := "Validation failed"
	if len(keys) > 0 {
		message = fields[keys[0]]
	}
	return apperr.Validation(apperr.CodeValidation, message).
		WithDetails(map[string]interface{}{"fields": fields})
}
