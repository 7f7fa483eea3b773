package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/avelldo/papertrader/internal/database"
)

// Snapshotter persists in-memory state to disk
type Snapshotter interface {
	Snapshot(path string) error
}

// MaintenanceJob keeps the ledger database healthy and the quote
// snapshot current. Runs on a slow cadence.
type MaintenanceJob struct {
	db           *database.DB
	snapshotter  Snapshotter
	snapshotPath string
	log          zerolog.Logger
}

// NewMaintenanceJob creates a new maintenance job
func NewMaintenanceJob(db *database.DB, snapshotter Snapshotter, snapshotPath string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:           db,
		snapshotter:  snapshotter,
		snapshotPath: snapshotPath,
		log:          log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance pass
func (j *MaintenanceJob) Run() error {
	if err := j.checkIntegrity(); err != nil {
		// Ledger corruption is critical - surface it, don't recover
		j.log.Error().Err(err).Msg("Ledger integrity check failed")
		return err
	}

	j.checkWALCheckpoint()

	if j.snapshotter != nil && j.snapshotPath != "" {
		if err := j.snapshotter.Snapshot(j.snapshotPath); err != nil {
			j.log.Warn().Err(err).Msg("Failed to write quote snapshot")
		}
	}

	j.log.Debug().Msg("Maintenance pass completed")

	return nil
}

// checkIntegrity runs SQLite's PRAGMA integrity_check on the ledger
func (j *MaintenanceJob) checkIntegrity() error {
	var result string
	if err := j.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check returned: %s", result)
	}

	return nil
}

// checkWALCheckpoint monitors WAL checkpoint status
func (j *MaintenanceJob) checkWALCheckpoint() {
	var mode, busy, frames, checkpointed int
	err := j.db.QueryRow("PRAGMA wal_checkpoint(PASSIVE)").Scan(&mode, &busy, &frames, &checkpointed)
	if err != nil {
		j.log.Warn().Err(err).Msg("Failed to check WAL checkpoint")
		return
	}

	if frames > 1000 {
		j.log.Warn().
			Int("wal_frames", frames).
			Int("checkpointed", checkpointed).
			Msg("WAL file is large, checkpoint may be needed")
	}
}
