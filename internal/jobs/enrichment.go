package jobs

import (
	"context"
	"log/slog"

	"tonelink/internal/config"
	"tonelink/internal/database"
	"tonelink/internal/visits"
)

// EnrichmentJob sweeps visits that were persisted without geolocation
// and re-resolves them through the provider chain
type EnrichmentJob struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	service   *visits.Service
	cfg       *config.Config
}

func NewEnrichmentJob(dbManager *database.DBManager, logger *slog.Logger, service *visits.Service, cfg *config.Config) *EnrichmentJob {
	return &EnrichmentJob{
		dbManager: dbManager,
		logger:    logger,
		service:   service,
		cfg:       cfg,
	}
}

// Run executes one enrichment batch over all pending visits
func (j *EnrichmentJob) Run() error {
	db := j.dbManager.GetConnection()

	pending, err := visits.CountPendingEnrichment(db)
	if err != nil {
		j.logger.Error("Failed to count pending visits", slog.Any("error", err))
		return err
	}
	if pending == 0 {
		j.logger.Debug("No visits pending enrichment")
		return nil
	}

	j.logger.Info("Found visits pending enrichment", slog.Int64("count", pending))

	result, err := j.service.EnrichBatch(context.Background(), visits.EnrichScope{}, j.cfg.EnrichBatchSize)
	if err != nil {
		j.logger.Error("Enrichment batch failed", slog.Any("error", err))
		return err
	}

	j.logger.Info("Enrichment pass finished",
		slog.Int("total", result.Total),
		slog.Int("updated", result.Updated),
		slog.Int("failed", result.Failed),
		slog.Int64("remaining", pending-int64(result.Total)))
	return nil
}
