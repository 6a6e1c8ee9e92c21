package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tonelink/internal/config"
	"tonelink/internal/database"
	"tonelink/internal/visits"
)

// Scheduler is responsible for running background jobs
type Scheduler struct {
	dbManager *database.DBManager
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool
	cfg       *config.Config

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	// Job instances
	enrichmentJob *EnrichmentJob
	retentionJob  *RetentionJob

	// Tickers for each job type
	enrichmentTicker *time.Ticker
	retentionTicker  *time.Ticker
}

func NewScheduler(dbManager *database.DBManager, logger *slog.Logger, service *visits.Service) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.GetConfig()

	s := &Scheduler{
		dbManager: dbManager,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		enabled:   true,
		isRunning: false,
		cfg:       cfg,
	}

	s.enrichmentJob = NewEnrichmentJob(dbManager, logger, service, cfg)
	s.retentionJob = NewRetentionJob(dbManager, logger, cfg)

	return s, nil
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...")
	s.isRunning = true

	s.startEnrichmentJob()
	s.startRetentionJob()

	s.logger.Info("Background jobs started",
		slog.Bool("enabled", s.enabled),
		slog.Bool("isRunning", s.isRunning))

	return nil
}

func (s *Scheduler) startEnrichmentJob() {
	interval := time.Duration(s.cfg.JobIntervalSeconds) * time.Second
	s.logger.Info("Starting enrichment job", slog.Duration("interval", interval))
	s.enrichmentTicker = time.NewTicker(interval)

	go func() {
		s.logger.Info("Running initial enrichment pass...")
		s.executeJobSafely("enrichment", s.enrichmentJob.Run)

		for {
			select {
			case <-s.enrichmentTicker.C:
				s.executeJobSafely("enrichment", s.enrichmentJob.Run)
			case <-s.ctx.Done():
				s.logger.Info("Enrichment job stopped")
				return
			}
		}
	}()
}

func (s *Scheduler) startRetentionJob() {
	interval := 24 * time.Hour
	s.logger.Info("Starting retention job", slog.Duration("interval", interval))
	s.retentionTicker = time.NewTicker(interval)

	go func() {
		s.logger.Info("Running initial retention pass...")
		if err := s.retentionJob.Run(); err != nil {
			s.logger.Error("Error in initial retention job", slog.Any("error", err))
		}

		for {
			select {
			case <-s.retentionTicker.C:
				if err := s.retentionJob.Run(); err != nil {
					s.logger.Error("Error in retention job", slog.Any("error", err))
				}
			case <-s.ctx.Done():
				s.logger.Info("Retention job stopped")
				return
			}
		}
	}()
}

// Stop halts all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	if s.enrichmentTicker != nil {
		s.enrichmentTicker.Stop()
	}
	if s.retentionTicker != nil {
		s.retentionTicker.Stop()
	}

	s.cancel()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}

// EnrichNow allows manual triggering of an enrichment pass
func (s *Scheduler) EnrichNow() error {
	if !s.enabled {
		return nil
	}
	return s.enrichmentJob.Run()
}
