package request

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

var (
	nameRegex  = regexp.MustCompile(`^[a-z][a-z0-9_-]+$`)
	hoursRegex = regexp.MustCompile(`^\d+h?$`)
)

func init() {
	validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return nameRegex.MatchString(fl.Field().String())
	})
	validate.RegisterValidation("hours", func(fl validator.FieldLevel) bool {
		return hoursRegex.MatchString(fl.Field().String())
	})
}

// Message is a free-form chat line.
type Message struct {
	Text string `json:"text" validate:"required,max=2000"`
}

func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}
