package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates individual configuration values.
type Validator struct{}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	if provider == "openai" && !strings.HasPrefix(key, "sk-") {
		return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
	}

	return nil
}

// ValidateBackend validates a semantic backend name.
func (v *Validator) ValidateBackend(backend string) error {
	switch backend {
	case "", "memory", "sqlite":
		return nil
	default:
		return fmt.Errorf("invalid semantic backend %s (must be: memory, sqlite)", backend)
	}
}

// ValidateSchedule validates a cron expression.
func (v *Validator) ValidateSchedule(expr string) error {
	if expr == "" {
		return fmt.Errorf("schedule cannot be empty")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateOperations validates a list of operation names.
func (v *Validator) ValidateOperations(ops []string) error {
	if len(ops) == 0 {
		return fmt.Errorf("at least one operation is required")
	}

	for _, op := range ops {
		switch op {
		case "read", "write", "delete":
		default:
			return fmt.Errorf("invalid operation %s (must be: read, write, delete)", op)
		}
	}
	return nil
}

// ValidateLogLevel validates a log level name.
func (v *Validator) ValidateLogLevel(level string) error {
	switch level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("invalid log level %s (must be: debug, info, warn, error)", level)
	}
}
