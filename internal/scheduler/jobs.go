package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nestegg-io/nestegg/internal/modules/portfolio"
)

// refreshTimeout bounds one full refresh fan-out, backoff included.
const refreshTimeout = 2 * time.Minute

// PriceRefreshJob refreshes the prices of the active session's positions.
// With no active session there is nothing to refresh.
type PriceRefreshJob struct {
	sessions *portfolio.SessionManager
	log      zerolog.Logger
}

// NewPriceRefreshJob creates a price refresh job.
func NewPriceRefreshJob(sessions *portfolio.SessionManager, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		sessions: sessions,
		log:      log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *PriceRefreshJob) Name() string { return "price_refresh" }

// Run refreshes all prices of the active ledger.
func (j *PriceRefreshJob) Run() error {
	ledger := j.sessions.Active()
	if ledger == nil {
		j.log.Debug().Msg("No active session, skipping refresh")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if err := ledger.RefreshAllPrices(ctx); err != nil {
		return err
	}

	summary := ledger.Summary()
	j.log.Info().
		Int("positions", summary.PositionCount).
		Float64("total_value", summary.TotalValue).
		Msg("Prices refreshed")
	return nil
}

// BackupFunc runs one backup pass. Implemented by
// reliability.BackupService.CreateAndUploadBackup.
type BackupFunc func(ctx context.Context) error

// BackupJob uploads a backup archive on schedule.
type BackupJob struct {
	backup BackupFunc
	log    zerolog.Logger
}

// NewBackupJob creates a backup job.
func NewBackupJob(backup BackupFunc, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backup: backup,
		log:    log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name for the scheduler.
func (j *BackupJob) Name() string { return "backup" }

// Run performs one backup pass.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	return j.backup(ctx)
}
