package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CleanupResult contains statistics about a cleanup operation.
type CleanupResult struct {
	// SessionsDeleted is the number of sessions removed
	SessionsDeleted int64
	// SnapshotsDeleted is the number of stage_snapshots rows removed with them
	SnapshotsDeleted int64
	// BlocksDeleted is the number of sample_blocks rows removed with them
	BlocksDeleted int64
	// Duration is how long the cleanup took
	Duration time.Duration
}

// TotalDeleted is the sum of all deleted rows.
func (r CleanupResult) TotalDeleted() int64 {
	return r.SessionsDeleted + r.SnapshotsDeleted + r.BlocksDeleted
}

// PurgeSessionsBefore deletes finished sessions started before cutoff,
// together with their snapshots and sample blocks. Running sessions are kept.
func (d *Database) PurgeSessionsBefore(ctx context.Context, cutoff time.Time) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}
	at := formatTime(cutoff)

	err := d.WithTx(ctx, func(tx *sql.Tx) error {
		const expired = `SELECT id FROM sessions WHERE started_at < ? AND status != 'running'`

		res, err := tx.ExecContext(ctx,
			`DELETE FROM stage_snapshots WHERE session_id IN (`+expired+`)`, at)
		if err != nil {
			return fmt.Errorf("failed to delete snapshots: %w", err)
		}
		result.SnapshotsDeleted, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx,
			`DELETE FROM sample_blocks WHERE session_id IN (`+expired+`)`, at)
		if err != nil {
			return fmt.Errorf("failed to delete sample blocks: %w", err)
		}
		result.BlocksDeleted, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx,
			`DELETE FROM sessions WHERE started_at < ? AND status != 'running'`, at)
		if err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
		result.SessionsDeleted, _ = res.RowsAffected()
		return nil
	})
	result.Duration = time.Since(start)
	return result, err
}

// Cleanup purges sessions older than retentionDays and runs VACUUM to
// reclaim disk space.
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	if retentionDays < 0 {
		return CleanupResult{}, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if err := ctx.Err(); err != nil {
		return CleanupResult{}, err
	}

	start := time.Now()
	result, err := d.PurgeSessionsBefore(ctx, time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		return result, err
	}

	// Rows are already gone; a cancelled or failed VACUUM is a partial success.
	if err := ctx.Err(); err != nil {
		result.Duration = time.Since(start)
		return result, err
	}
	if result.TotalDeleted() > 0 {
		if _, err := d.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig holds configuration for the cleanup scheduler.
type CleanupSchedulerConfig struct {
	// RetentionDays is the number of days to retain sessions
	RetentionDays int
	// Interval is how often to run cleanup
	Interval time.Duration
	// OnCleanup is called after each cleanup run (optional)
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig returns the defaults: 30 days, daily.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs Cleanup immediately and then at every
// Interval until ctx is cancelled. The returned channel is closed when the
// scheduler goroutine exits.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) <-chan struct{} {
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupSchedulerConfig().Interval
	}
	done := make(chan struct{})

	run := func() {
		result, err := d.Cleanup(ctx, config.RetentionDays)
		if config.OnCleanup != nil {
			config.OnCleanup(result, err)
		}
	}

	go func() {
		defer close(done)
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
	return done
}
