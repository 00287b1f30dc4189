package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	coordinatePattern = regexp.MustCompile(`^[-+]?\d{1,3}(?:[.,]\d+)?$`)
)

// Telegram chat ids fit in 52 bits; supergroups are negative.
const maxChatID = 1<<52 - 1

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = v.RegisterValidation("coordinate", func(fl validator.FieldLevel) bool {
			return coordinatePattern.MatchString(strings.TrimSpace(fl.Field().String()))
		})

		// Zero means "not configured" and is left to required_with.
		_ = v.RegisterValidation("chat_id", func(fl validator.FieldLevel) bool {
			id := fl.Field().Int()
			return id >= -maxChatID && id <= maxChatID
		})

		validateInst = v
	})

	return validateInst
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	return convertValidationError(validatorInstance().Struct(cfg))
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := fieldName(ve)
		return &ValidationError{Field: field, Message: message(ve), Err: err}
	}

	return &ValidationError{Field: "config", Message: err.Error(), Err: err}
}

// fieldName turns "Config.telegram.debug_chat_id" into "telegram.debug_chat_id".
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return fmt.Sprintf("is required when %s is set", strings.ToLower(fe.Param()))
	case "coordinate":
		return fmt.Sprintf("%q is not a decimal coordinate", fe.Value())
	case "chat_id":
		return fmt.Sprintf("%v is not a valid Telegram chat id", fe.Value())
	case "url":
		return fmt.Sprintf("%q is not a valid URL", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation for tag '%s'", fe.Tag())
	}
}
