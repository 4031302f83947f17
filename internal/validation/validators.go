package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/benvon/gateway-console/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("http_url", validateHTTPURL); err != nil {
		panic(fmt.Sprintf("failed to register http_url validator: %v", err))
	}
}

// validateHTTPURL accepts absolute http and https URLs with a host
func validateHTTPURL(fl validator.FieldLevel) bool {
	return IsHTTPURL(fl.Field().String())
}

// IsHTTPURL reports whether s parses as an absolute http(s) URL with a host.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ValidateConfiguration checks a gateway configuration against its field rules.
// The result is advisory: saving never blocks on it.
func ValidateConfiguration(cfg models.GatewayConfiguration) error {
	warnings := ConfigurationWarnings(cfg)
	if len(warnings) == 0 {
		return nil
	}
	return fmt.Errorf("invalid gateway configuration: %s", strings.Join(warnings, "; "))
}

// ConfigurationWarnings lists every field rule cfg breaks, in field order.
func ConfigurationWarnings(cfg models.GatewayConfiguration) []string {
	err := Validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return msgs
}

func describe(fe validator.FieldError) string {
	switch fe.Field() {
	case "TargetBackendURL":
		return fmt.Sprintf("%s must be a valid URL", models.FieldTargetBackendURL)
	case "RateLimitPerMinute":
		return fmt.Sprintf("%s must be a positive integer", models.FieldRateLimitPerMinute)
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
