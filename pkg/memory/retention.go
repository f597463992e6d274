package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	// DefaultSweepSchedule runs the sweep hourly.
	DefaultSweepSchedule = "0 * * * *"

	// DefaultSnapshotMaxAge is how long superseded snapshots of
	// completed workflows are kept before pruning.
	DefaultSnapshotMaxAge = 7 * 24 * time.Hour

	// sweeperUserID identifies the sweeper in audit entries.
	sweeperUserID = "retention-sweeper"
)

// RetentionSweeper prunes superseded working-tier snapshots of
// completed workflows on a cron schedule. It goes through the Manager
// with admin credentials so every pruned snapshot leaves an audit
// entry. The latest snapshot of each workflow is always kept.
type RetentionSweeper struct {
	manager  *Manager
	runner   *cron.Cron
	schedule string
	maxAge   time.Duration
	logger   zerolog.Logger
}

// RetentionConfig holds retention sweeper configuration. Zero values
// fall back to the defaults above; a negative MaxAge expires every
// superseded snapshot immediately.
type RetentionConfig struct {
	Schedule string
	MaxAge   time.Duration
	Logger   zerolog.Logger
}

// NewRetentionSweeper creates a sweeper bound to the manager.
func NewRetentionSweeper(manager *Manager, cfg RetentionConfig) *RetentionSweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepSchedule
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultSnapshotMaxAge
	}
	return &RetentionSweeper{
		manager:  manager,
		runner:   cron.New(),
		schedule: cfg.Schedule,
		maxAge:   cfg.MaxAge,
		logger:   cfg.Logger,
	}
}

// Start registers the sweep job and starts the cron runner.
func (r *RetentionSweeper) Start() error {
	_, err := r.runner.AddFunc(r.schedule, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			r.logger.Error().Err(err).Msg("Retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", r.schedule, err)
	}

	r.runner.Start()
	r.logger.Info().
		Str("schedule", r.schedule).
		Dur("max_age", r.maxAge).
		Msg("Retention sweeper started")
	return nil
}

// Stop stops the cron runner and waits for a running sweep to finish.
func (r *RetentionSweeper) Stop() {
	ctx := r.runner.Stop()
	<-ctx.Done()
	r.logger.Info().Msg("Retention sweeper stopped")
}

// Sweep prunes once and returns the number of snapshots deleted.
// Snapshots survive when their workflow is still running, when they are
// the workflow's latest version, or when they are younger than the
// retention window.
func (r *RetentionSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-r.maxAge)
	deleted := 0

	records, err := r.manager.WorkflowHistory(ctx, Query{}, 0, sweeperUserID, AdminRole)
	if err != nil {
		return 0, fmt.Errorf("failed to list workflows: %w", err)
	}

	for _, rec := range records {
		if rec.WorkflowStatus != "completed" && rec.WorkflowStatus != "failed" {
			continue
		}

		chain, err := r.manager.ContextHistory(ctx, rec.WorkflowID, sweeperUserID, AdminRole)
		if err != nil {
			r.logger.Error().Err(err).Str("workflow_id", rec.WorkflowID).Msg("Failed to load snapshot chain")
			continue
		}
		if len(chain) <= 1 {
			continue
		}

		// Chain is in version order; the last entry is the current
		// state and is never pruned.
		for _, snap := range chain[:len(chain)-1] {
			if snap.UpdatedAt.After(cutoff) {
				continue
			}
			ok, err := r.manager.Delete(ctx, snap.ID, TierWorking, sweeperUserID, AdminRole)
			if err != nil {
				r.logger.Error().Err(err).Str("snapshot_id", snap.ID).Msg("Failed to prune snapshot")
				continue
			}
			if ok {
				deleted++
			}
		}
	}

	r.logger.Info().Int("deleted", deleted).Msg("Retention sweep completed")
	return deleted, nil
}
