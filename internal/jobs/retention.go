package jobs

import (
	"log/slog"
	"time"

	"tonelink/internal/config"
	"tonelink/internal/database"
	"tonelink/internal/visits"
)

// RetentionJob blanks the raw IP, user-agent and referrer data of old
// visits, keeping only the derived attributes for the dashboards.
// Data minimization: the raw inputs are only needed for auditing and
// deferred enrichment, both of which have a bounded horizon.
type RetentionJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	cfg       *config.Config
}

func NewRetentionJob(dbManager *database.DBManager, logger *slog.Logger, cfg *config.Config) *RetentionJob {
	return &RetentionJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
	}
}

// Run scrubs raw request data from visits past the retention window
func (j *RetentionJob) Run() error {
	retentionDays := j.cfg.RawDataRetentionDays
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting raw data retention pass",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff", cutoff))

	scrubbed, err := visits.ScrubRawData(j.logger, j.dbManager.GetConnection(), cutoff, 1000)
	if err != nil {
		j.logger.Error("Retention pass failed", slog.Any("error", err))
		return err
	}

	if scrubbed == 0 {
		j.logger.Debug("No visits past the retention window")
		return nil
	}

	j.logger.Info("Raw data retention pass finished", slog.Int64("scrubbed", scrubbed))
	return nil
}
