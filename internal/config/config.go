package config

import (
	"encoding/json"
	"fmt"
)

// Config is the main arbiter configuration.
type Config struct {
	// Store configuration
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Embedding provider configuration
	Embedding EmbeddingConfig `json:"embedding" mapstructure:"embedding"`

	// Retention sweeper configuration
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`

	// Session client configuration
	Session SessionConfig `json:"session" mapstructure:"session"`

	// Default role policies applied to entities stored without a
	// declared policy
	Roles []RolePolicyConfig `json:"roles" mapstructure:"roles"`

	// Content-type JSON Schemas, keyed by content type, value is a
	// schema file path
	Schemas map[string]string `json:"schemas" mapstructure:"schemas"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// StoreConfig selects and tunes the tier backends.
type StoreConfig struct {
	// SemanticBackend is "memory" or "sqlite"
	SemanticBackend string `json:"semantic_backend" mapstructure:"semantic_backend"`
	DBPath          string `json:"db_path" mapstructure:"db_path"`
	AuditCapacity   int    `json:"audit_capacity" mapstructure:"audit_capacity"`
	AuditSinkFile   string `json:"audit_sink_file" mapstructure:"audit_sink_file"`
}

// EmbeddingConfig holds embedding provider settings. An empty provider
// disables embeddings; semantic search degrades to empty results.
type EmbeddingConfig struct {
	// Provider is "openai" or "" (disabled)
	Provider string `json:"provider" mapstructure:"provider"`
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	Model    string `json:"model" mapstructure:"model"`
}

// RetentionConfig holds retention sweeper settings.
type RetentionConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Schedule    string `json:"schedule" mapstructure:"schedule"` // cron expression
	MaxAgeHours int    `json:"max_age_hours" mapstructure:"max_age_hours"`
}

// SessionConfig holds session client settings.
type SessionConfig struct {
	RulesFile string `json:"rules_file" mapstructure:"rules_file"`
	Strict    bool   `json:"strict" mapstructure:"strict"`
}

// RolePolicyConfig declares the default operations granted to a role on
// newly stored entities.
type RolePolicyConfig struct {
	Role       string   `json:"role" mapstructure:"role"`
	Operations []string `json:"operations" mapstructure:"operations"` // read, write, delete
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a config with default values.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			SemanticBackend: "memory",
			AuditCapacity:   10000,
		},
		Embedding: EmbeddingConfig{
			Provider: "",
			Model:    "text-embedding-3-small",
		},
		Retention: RetentionConfig{
			Enabled:     false,
			Schedule:    "0 * * * *",
			MaxAgeHours: 168,
		},
		Roles: []RolePolicyConfig{
			{Role: "agent", Operations: []string{"read", "write"}},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateBackend(c.Store.SemanticBackend); err != nil {
		return err
	}
	if c.Store.SemanticBackend == "sqlite" && c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path is required for the sqlite backend")
	}
	if c.Store.AuditCapacity < 0 {
		return fmt.Errorf("store.audit_capacity must not be negative")
	}

	if c.Embedding.Provider != "" {
		if c.Embedding.Provider != "openai" {
			return fmt.Errorf("invalid embedding provider %s (must be: openai)", c.Embedding.Provider)
		}
		if err := v.ValidateAPIKey(c.Embedding.APIKey, c.Embedding.Provider); err != nil {
			return err
		}
	}

	if c.Retention.Enabled {
		if err := v.ValidateSchedule(c.Retention.Schedule); err != nil {
			return err
		}
		if c.Retention.MaxAgeHours <= 0 {
			return fmt.Errorf("retention.max_age_hours must be positive")
		}
	}

	for i, role := range c.Roles {
		if role.Role == "" {
			return fmt.Errorf("roles[%d]: role name is required", i)
		}
		if err := v.ValidateOperations(role.Operations); err != nil {
			return fmt.Errorf("roles[%d] (%s): %w", i, role.Role, err)
		}
	}

	return nil
}
