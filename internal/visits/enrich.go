package visits

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/karloscodes/cartridge/sqlite"
)

// EnrichScope narrows an enrichment run to a single parent entity. The
// zero value means all visits.
type EnrichScope struct {
	ParentType string
	ParentID   uint
}

// EnrichResult tallies one enrichment batch.
type EnrichResult struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// EnrichBatch sweeps visits that still lack geolocation, re-resolves
// their IPs and patches the resolved fields in place. It is idempotent:
// enriched visits no longer match the selection, so re-running only
// touches what the previous run could not resolve. Per-visit errors are
// counted as failures, never aborts; the returned error only covers the
// selection query itself.
//
// Lookups are paced with a rate limiter and processed in sub-batches
// with a pause in between, since the fallback providers are free-tier
// rate-limited services.
func (s *Service) EnrichBatch(ctx context.Context, scope EnrichScope, batchSize int) (EnrichResult, error) {
	if batchSize <= 0 {
		batchSize = s.enrich.BatchSize
	}

	db := s.dbManager.GetConnection()

	query := db.Model(&Visit{}).
		Where("enrichment_status = ?", EnrichmentPending).
		Where("ip IS NOT NULL AND ip != ''").
		Where("(country IS NULL OR country = '')").
		Where("(country_code IS NULL OR country_code = '')").
		Order("timestamp ASC").
		Limit(batchSize)
	if scope.ParentType != "" {
		query = query.Where("parent_type = ? AND parent_id = ?", scope.ParentType, scope.ParentID)
	}

	var pending []Visit
	if err := query.Find(&pending).Error; err != nil {
		return EnrichResult{}, fmt.Errorf("failed to query pending visits: %w", err)
	}

	result := EnrichResult{Total: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Limit(s.enrich.RatePerSecond), 1)

	for start := 0; start < len(pending); start += s.enrich.SubBatchSize {
		end := start + s.enrich.SubBatchSize
		if end > len(pending) {
			end = len(pending)
		}

		for i := start; i < end; i++ {
			if err := limiter.Wait(ctx); err != nil {
				// Context cancelled mid-batch: report what we have.
				return result, nil
			}
			if s.enrichOne(ctx, db, &pending[i]) {
				result.Updated++
			} else {
				result.Failed++
			}
		}

		if end < len(pending) {
			time.Sleep(s.enrich.InterBatchDelay)
		}
	}

	s.logger.Info("enrichment batch finished",
		slog.Int("total", result.Total),
		slog.Int("updated", result.Updated),
		slog.Int("failed", result.Failed))
	return result, nil
}

// enrichOne resolves and patches a single visit, reporting success.
// Failures increment the attempt counter; once the cap is reached the
// visit is marked failed and leaves the enrichment pool for good.
func (s *Service) enrichOne(ctx context.Context, db *gorm.DB, visit *Visit) bool {
	location := s.resolver.Resolve(ctx, deref(visit.IP))

	if location.IsEmpty() {
		s.recordFailure(db, visit)
		return false
	}

	// Patch only the resolved fields so existing data is never blanked.
	patch := map[string]any{
		"enrichment_status": EnrichmentComplete,
	}
	if location.Country != "" {
		patch["country"] = location.Country
	}
	if location.CountryCode != "" {
		patch["country_code"] = location.CountryCode
	}
	if location.Region != "" {
		patch["region"] = location.Region
	}
	if location.City != "" {
		patch["city"] = location.City
	}
	if location.Timezone != "" {
		patch["timezone"] = location.Timezone
	}

	err := sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
		return tx.Model(&Visit{}).Where("id = ?", visit.ID).Updates(patch).Error
	})
	if err != nil {
		s.logger.Error("failed to patch enriched visit",
			slog.Uint64("visit_id", uint64(visit.ID)),
			slog.Any("error", err))
		return false
	}
	return true
}

// recordFailure bumps the attempt counter. The status flips to failed
// at the attempt cap, removing the visit from the enrichment pool.
func (s *Service) recordFailure(db *gorm.DB, visit *Visit) {
	attempts := visit.EnrichmentAttempts + 1
	status := EnrichmentPending
	if attempts >= s.enrich.MaxAttempts {
		status = EnrichmentFailed
	}

	err := sqlite.PerformWrite(s.logger, db, func(tx *gorm.DB) error {
		return tx.Model(&Visit{}).Where("id = ?", visit.ID).Updates(map[string]any{
			"enrichment_attempts": attempts,
			"enrichment_status":   status,
		}).Error
	})
	if err != nil {
		s.logger.Error("failed to record enrichment failure",
			slog.Uint64("visit_id", uint64(visit.ID)),
			slog.Any("error", err))
	}
}
