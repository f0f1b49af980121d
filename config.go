package magiccode

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the engine settings. It is cloned into the Engine at Build and
// treated as immutable afterwards.
type Config struct {
	// Secret is reserved key material; it signs issuance receipts when enabled.
	Secret string `validate:"min=16"`
	// CodeLength is the number of decimal digits in a generated code.
	CodeLength int `validate:"min=4,max=18"`
	// ExpiresIn is the token lifetime measured from issuance.
	ExpiresIn time.Duration `validate:"gt=0"`
	// CodeField names the input field that carries the code at verification.
	CodeField string `validate:"required"`
	// UserKeyField names the identity field, in both the issued record and the
	// verification input.
	UserKeyField string `validate:"required"`

	Receipt ReceiptConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

// ReceiptConfig controls signed issuance receipts.
type ReceiptConfig struct {
	Enabled bool
	Issuer  string
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int `validate:"required_if=Enabled true,gte=0"`
	DropIfFull bool
}

// MetricsConfig controls the in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the documented defaults. Secret is left empty and must
// be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		CodeLength:   4,
		ExpiresIn:    30 * time.Minute,
		CodeField:    "code",
		UserKeyField: "email",
		Receipt: ReceiptConfig{
			Issuer: "magiccode",
		},
		Audit: AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	return cfg
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

var violationMessages = map[string]string{
	"Secret.min":             "Secret must be at least 16 characters",
	"CodeLength.min":         "CodeLength must be >= 4",
	"CodeLength.max":         "CodeLength must be <= 18",
	"ExpiresIn.gt":           "ExpiresIn must be > 0",
	"CodeField.required":     "CodeField must not be empty",
	"UserKeyField.required":  "UserKeyField must not be empty",
	"BufferSize.required_if": "Audit BufferSize must be > 0 when audit is enabled",
	"BufferSize.gte":         "Audit BufferSize must be >= 0",
}

// Validate checks every constraint and reports all violations at once as a
// single *Error of kind KindConfiguration.
func (c *Config) Validate() error {
	if c == nil {
		return configurationError([]string{"config is nil"})
	}

	var violations []string
	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return configurationError([]string{err.Error()})
		}
		for _, fe := range fieldErrs {
			key := fe.Field() + "." + fe.Tag()
			if msg, ok := violationMessages[key]; ok {
				violations = append(violations, msg)
				continue
			}
			violations = append(violations, fmt.Sprintf("%s fails %s", fe.Namespace(), fe.Tag()))
		}
	}
	if c.Receipt.Enabled && c.Receipt.Issuer == "" {
		violations = append(violations, "Receipt Issuer must not be empty when receipts are enabled")
	}

	if len(violations) == 0 {
		return nil
	}
	sort.Strings(violations)
	return configurationError(violations)
}
