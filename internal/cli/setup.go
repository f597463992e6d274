package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/logger"
	"github.com/arbiterhq/arbiter/internal/tracing"
	"github.com/arbiterhq/arbiter/pkg/memory"
)

// buildManager wires a memory manager from the loaded config: semantic
// backend selection, embedding provider, audit sink, role defaults, and
// content schemas.
func buildManager(cfg *config.Config) (*memory.Manager, func(), error) {
	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   false,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	zl := lg.GetZerolog()

	if err := tracing.Init("arbiter", version); err != nil {
		zl.Warn().Err(err).Msg("tracing disabled")
	}

	var provider memory.EmbeddingProvider
	if cfg.Embedding.Provider == "openai" {
		provider = memory.NewOpenAIProvider(cfg.Embedding.APIKey, cfg.Embedding.Model)
	}

	var semantic memory.TierBackend
	var closeSemantic func() error
	if cfg.Store.SemanticBackend == "sqlite" {
		s, err := memory.NewSQLiteSemanticStore(memory.SQLiteConfig{
			DBPath:   cfg.Store.DBPath,
			Provider: provider,
			Logger:   zl,
		})
		if err != nil {
			lg.Close()
			return nil, nil, fmt.Errorf("failed to open semantic store: %w", err)
		}
		semantic = s
		closeSemantic = s.Close
	} else {
		semantic = memory.NewSemanticStore(provider, zl)
	}

	var sink *os.File
	var sinkWriter io.Writer
	if cfg.Store.AuditSinkFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.AuditSinkFile), 0755); err != nil {
			lg.Close()
			return nil, nil, fmt.Errorf("failed to create audit sink directory: %w", err)
		}
		sink, err = os.OpenFile(cfg.Store.AuditSinkFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			lg.Close()
			return nil, nil, fmt.Errorf("failed to open audit sink: %w", err)
		}
		sinkWriter = sink
	}

	audit := memory.NewAuditLog(cfg.Store.AuditCapacity, sinkWriter)

	schemas := memory.NewSchemaRegistry(zl)
	for contentType, schemaPath := range cfg.Schemas {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			lg.Close()
			return nil, nil, fmt.Errorf("failed to read schema for %s: %w", contentType, err)
		}
		if err := schemas.Register(contentType, string(data)); err != nil {
			lg.Close()
			return nil, nil, err
		}
	}

	m := memory.NewManager(memory.Config{
		Semantic: semantic,
		Audit:    audit,
		Schemas:  schemas,
		Logger:   zl,
	})
	for _, role := range cfg.Roles {
		ops := make([]memory.Operation, 0, len(role.Operations))
		for _, op := range role.Operations {
			ops = append(ops, memory.Operation(op))
		}
		m.Access().RegisterRoleDefault(role.Role, memory.NewOperationSet(ops...))
	}

	cleanup := func() {
		if closeSemantic != nil {
			closeSemantic()
		}
		if sink != nil {
			sink.Close()
		}
		tracing.Shutdown(context.Background())
		lg.Close()
	}
	return m, cleanup, nil
}

// newRetentionSweeper builds the sweeper the daemonless CLI runs once
// per invocation of the sweep command.
func newRetentionSweeper(m *memory.Manager, cfg *config.Config) *memory.RetentionSweeper {
	return memory.NewRetentionSweeper(m, memory.RetentionConfig{
		Schedule: cfg.Retention.Schedule,
		MaxAge:   time.Duration(cfg.Retention.MaxAgeHours) * time.Hour,
	})
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
