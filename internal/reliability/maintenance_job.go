package reliability

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/database"
)

// MaintenanceJob runs the daily database upkeep: an integrity quick check
// followed by a WAL checkpoint on every database.
type MaintenanceJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewMaintenanceJob creates a maintenance job over the given databases.
func NewMaintenanceJob(databases []*database.DB, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "db_maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *MaintenanceJob) Name() string { return "db_maintenance" }

// Run executes the maintenance pass.
func (j *MaintenanceJob) Run() error {
	startTime := time.Now()

	var lastErr error
	for _, db := range j.databases {
		if err := j.checkDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Integrity check failed")
			lastErr = err
			continue
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			// Not critical; the next checkpoint will catch up.
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	j.log.Info().
		Dur("duration_ms", time.Since(startTime)).
		Int("databases", len(j.databases)).
		Msg("Database maintenance completed")
	return lastErr
}

func (j *MaintenanceJob) checkDatabase(db *database.DB) error {
	var result string
	if err := db.Conn().QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("quick check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("quick check reported %q for %s", result, db.Name())
	}
	return nil
}
