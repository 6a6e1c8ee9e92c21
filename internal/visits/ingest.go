package visits

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"tonelink/internal/attribution"
	"tonelink/internal/geo"
	"tonelink/internal/links"
	"tonelink/internal/releases"
	"tonelink/internal/useragent"
)

// Service ingests visitor interactions and runs deferred enrichment.
type Service struct {
	logger    *slog.Logger
	dbManager cartridge.DBManager
	resolver  *geo.Resolver
	budget    time.Duration
	enrich    EnrichSettings
}

// EnrichSettings tunes the deferred enrichment batches.
type EnrichSettings struct {
	BatchSize       int
	SubBatchSize    int
	InterBatchDelay time.Duration
	MaxAttempts     int
	RatePerSecond   float64
}

func (e *EnrichSettings) applyDefaults() {
	if e.BatchSize <= 0 {
		e.BatchSize = 50
	}
	if e.SubBatchSize <= 0 {
		e.SubBatchSize = 10
	}
	if e.InterBatchDelay <= 0 {
		e.InterBatchDelay = 500 * time.Millisecond
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = 5
	}
	if e.RatePerSecond <= 0 {
		e.RatePerSecond = 2
	}
}

// NewService creates the visit service. budget bounds how long Ingest
// waits on geolocation before responding without it.
func NewService(logger *slog.Logger, dbManager cartridge.DBManager, resolver *geo.Resolver, budget time.Duration, enrich EnrichSettings) *Service {
	enrich.applyDefaults()
	return &Service{
		logger:    logger,
		dbManager: dbManager,
		resolver:  resolver,
		budget:    budget,
		enrich:    enrich,
	}
}

// Request is one inbound visit or interaction to ingest.
type Request struct {
	ParentType string
	ParentID   uint
	Kind       string

	IP        string
	UserAgent string
	Referrer  string
	// Query parameters of the visited page's own URL, not the referrer.
	PageQuery url.Values

	Platform    string
	ButtonLabel string
}

// Ingest classifies, attributes and geolocates one interaction, persists
// the visit record and bumps the parent counter for views. Classification
// and attribution run synchronously; geolocation races a fixed budget so
// the caller's response is never held hostage by a slow provider.
func (s *Service) Ingest(ctx context.Context, req Request) error {
	if err := validateRequest(req); err != nil {
		return err
	}

	classification := useragent.Classify(req.UserAgent)
	attr := attribution.Resolve(req.Referrer, req.PageQuery)

	var location geo.Location
	if req.IP != "" {
		location = s.resolveWithBudget(ctx, req.IP)
	}

	visit := Build(BuildInput{
		ParentType:     req.ParentType,
		ParentID:       req.ParentID,
		Kind:           req.Kind,
		IP:             req.IP,
		UserAgent:      req.UserAgent,
		Referrer:       req.Referrer,
		QueryString:    req.PageQuery.Encode(),
		Platform:       req.Platform,
		ButtonLabel:    req.ButtonLabel,
		Classification: classification,
		Attribution:    attr,
		Location:       location,
	})

	db := s.dbManager.GetConnection()
	err := sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
		return tx.Create(&visit).Error
	})
	if err != nil {
		s.logger.Error("failed to store visit", slog.Any("error", err))
		return fmt.Errorf("failed to store visit: %w", err)
	}

	if req.Kind == KindView {
		if err := s.incrementParentCounter(db, req.ParentType, req.ParentID); err != nil {
			// The visit record is already stored; a lost counter bump
			// is tolerable, matching the counter's best-effort nature.
			s.logger.Warn("failed to increment parent counter",
				slog.String("parent_type", req.ParentType),
				slog.Uint64("parent_id", uint64(req.ParentID)),
				slog.Any("error", err))
		}
	}

	return nil
}

// resolveWithBudget races the geolocation chain against the ingest
// budget. On timeout the lookup keeps running detached; its late result
// lands in the buffered channel and is discarded with it, leaving the
// record for the enrichment job.
func (s *Service) resolveWithBudget(ctx context.Context, ip string) geo.Location {
	resultCh := make(chan geo.Location, 1)
	go func() {
		resultCh <- s.resolver.Resolve(context.WithoutCancel(ctx), ip)
	}()

	select {
	case location := <-resultCh:
		return location
	case <-time.After(s.budget):
		s.logger.Debug("geolocation exceeded ingest budget, deferring to enrichment",
			slog.Duration("budget", s.budget))
		return geo.Location{}
	}
}

func (s *Service) incrementParentCounter(db *gorm.DB, parentType string, parentID uint) error {
	return sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
		switch parentType {
		case ParentTypeLink:
			return links.IncrementClicks(tx, parentID)
		case ParentTypeRelease:
			return releases.IncrementViews(tx, parentID)
		default:
			return fmt.Errorf("unknown parent type %q", parentType)
		}
	})
}

func validateRequest(req Request) error {
	if req.ParentType != ParentTypeLink && req.ParentType != ParentTypeRelease {
		return fmt.Errorf("invalid parent type %q", req.ParentType)
	}
	if req.ParentID == 0 {
		return fmt.Errorf("missing parent id")
	}
	switch req.Kind {
	case KindView, KindPlatformClick, KindButtonClick:
		return nil
	default:
		return fmt.Errorf("invalid visit kind %q", req.Kind)
	}
}
