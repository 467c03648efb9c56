package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrValidation marks caller mistakes; the API maps it to 400.
var ErrValidation = errors.New("validation failed")

const (
	minPhoneDigits = 10
	maxPhoneDigits = 13
)

var phoneStripper = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")

// NormalizePhone strips formatting characters and reports whether what is left
// is a plausible international number.
func NormalizePhone(raw string) (string, bool) {
	p := phoneStripper.Replace(strings.TrimSpace(raw))
	if len(p) < minPhoneDigits || len(p) > maxPhoneDigits {
		return p, false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return p, false
		}
	}
	return p, true
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		_, ok := NormalizePhone(fl.Field().String())
		return ok
	})
	return v
}

func validationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "phone":
		return fe.Field() + " must contain 10 to 13 digits"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
