package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates configuration values using go-playground/validator
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	v := validator.New()

	// report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterValidation("capture_mode", validateCaptureMode)
	v.RegisterValidation("sample_rate", validateSampleRate)
	v.RegisterValidation("log_level", validateLogLevel)
	v.RegisterValidation("log_format", validateLogFormat)
	v.RegisterValidation("ws_or_http_url", validateWSOrHTTPURL)

	return &Validator{
		validate: v,
	}
}

// Validate validates a complete configuration
func (v *Validator) Validate(config *Config) error {
	if config.Version == "" {
		config.Version = "1.0"
	}

	if err := v.validate.Struct(config); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			e := validationErrors[0]
			field := e.Namespace()
			if _, rest, ok := strings.Cut(field, "."); ok {
				field = rest
			}
			return ValidationError{
				Field:   field,
				Message: fmt.Sprintf("validation failed on tag '%s' with value '%v'", e.Tag(), e.Value()),
				Value:   e.Value(),
			}
		}
		return err
	}

	return nil
}

// validateCaptureMode validates audio capture modes
func validateCaptureMode(fl validator.FieldLevel) bool {
	return slices.Contains([]string{ModeBuffered, ModeStreaming}, fl.Field().String())
}

// validateSampleRate accepts the rates the speech backend handles
func validateSampleRate(fl validator.FieldLevel) bool {
	return slices.Contains([]int64{8000, 16000, 22050, 24000, 44100, 48000}, fl.Field().Int())
}

// validateLogLevel validates log level values
func validateLogLevel(fl validator.FieldLevel) bool {
	return slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(fl.Field().String()))
}

// validateLogFormat validates log format values
func validateLogFormat(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	return slices.Contains([]string{"json", "text"}, value)
}

// validateWSOrHTTPURL validates an absolute http, https, ws or wss URL
func validateWSOrHTTPURL(fl validator.FieldLevel) bool {
	u, err := url.Parse(fl.Field().String())
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return true
	}
	return false
}
