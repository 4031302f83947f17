package models

import "fmt"

// Field names one property of GatewayConfiguration by its wire name.
type Field string

const (
	FieldTargetBackendURL   Field = "target_backend_url"
	FieldRateLimitEnabled   Field = "rate_limit_enabled"
	FieldRateLimitPerMinute Field = "rate_limit_per_minute"
	FieldCacheEnabled       Field = "cache_enabled"
	FieldIdempotencyEnabled Field = "idempotency_enabled"
	FieldWAFEnabled         Field = "waf_enabled"
)

// FieldKind is the value type a Field holds.
type FieldKind int

const (
	FieldKindString FieldKind = iota
	FieldKindInt
	FieldKindBool
)

var fieldKinds = map[Field]FieldKind{
	FieldTargetBackendURL:   FieldKindString,
	FieldRateLimitEnabled:   FieldKindBool,
	FieldRateLimitPerMinute: FieldKindInt,
	FieldCacheEnabled:       FieldKindBool,
	FieldIdempotencyEnabled: FieldKindBool,
	FieldWAFEnabled:         FieldKindBool,
}

// Kind reports the value type of f. ok is false for unknown fields.
func (f Field) Kind() (kind FieldKind, ok bool) {
	kind, ok = fieldKinds[f]
	return kind, ok
}

// Fields returns every configuration field in form order.
func Fields() []Field {
	return []Field{
		FieldTargetBackendURL,
		FieldRateLimitEnabled,
		FieldRateLimitPerMinute,
		FieldCacheEnabled,
		FieldIdempotencyEnabled,
		FieldWAFEnabled,
	}
}

// FeatureFlags returns the boolean feature switches in form order.
func FeatureFlags() []Field {
	return []Field{
		FieldRateLimitEnabled,
		FieldCacheEnabled,
		FieldIdempotencyEnabled,
		FieldWAFEnabled,
	}
}

// Default gateway settings used before the first successful fetch.
const (
	DefaultTargetBackendURL   = "http://localhost:3001"
	DefaultRateLimitPerMinute = 100
)

// GatewayConfiguration is the full set of gateway settings. It is always
// transmitted whole; there are no partial updates.
type GatewayConfiguration struct {
	TargetBackendURL   string `json:"target_backend_url" yaml:"target_backend_url" validate:"required,http_url"`
	RateLimitEnabled   bool   `json:"rate_limit_enabled" yaml:"rate_limit_enabled"`
	CacheEnabled       bool   `json:"cache_enabled" yaml:"cache_enabled"`
	IdempotencyEnabled bool   `json:"idempotency_enabled" yaml:"idempotency_enabled"`
	WAFEnabled         bool   `json:"waf_enabled" yaml:"waf_enabled"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute" validate:"gt=0"`
}

// DefaultGatewayConfiguration returns the settings shown before the gateway has answered.
func DefaultGatewayConfiguration() GatewayConfiguration {
	return GatewayConfiguration{
		TargetBackendURL:   DefaultTargetBackendURL,
		RateLimitEnabled:   true,
		CacheEnabled:       true,
		IdempotencyEnabled: true,
		WAFEnabled:         true,
		RateLimitPerMinute: DefaultRateLimitPerMinute,
	}
}

// SetString stores v into a string field.
func (c *GatewayConfiguration) SetString(f Field, v string) error {
	switch f {
	case FieldTargetBackendURL:
		c.TargetBackendURL = v
		return nil
	}
	return fmt.Errorf("field %q is not a string field", f)
}

// SetInt stores v into an integer field.
func (c *GatewayConfiguration) SetInt(f Field, v int) error {
	switch f {
	case FieldRateLimitPerMinute:
		c.RateLimitPerMinute = v
		return nil
	}
	return fmt.Errorf("field %q is not an integer field", f)
}

// SetBool stores v into a boolean field.
func (c *GatewayConfiguration) SetBool(f Field, v bool) error {
	p, err := c.boolField(f)
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Bool returns the value of a boolean field.
func (c *GatewayConfiguration) Bool(f Field) (bool, error) {
	p, err := c.boolField(f)
	if err != nil {
		return false, err
	}
	return *p, nil
}

func (c *GatewayConfiguration) boolField(f Field) (*bool, error) {
	switch f {
	case FieldRateLimitEnabled:
		return &c.RateLimitEnabled, nil
	case FieldCacheEnabled:
		return &c.CacheEnabled, nil
	case FieldIdempotencyEnabled:
		return &c.IdempotencyEnabled, nil
	case FieldWAFEnabled:
		return &c.WAFEnabled, nil
	}
	return nil, fmt.Errorf("field %q is not a boolean field", f)
}
