package visits

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// GetVisitsForParent returns all visits for one parent entity since the
// given time, oldest first. A zero since returns the full history.
func GetVisitsForParent(db *gorm.DB, parentType string, parentID uint, since time.Time) ([]Visit, error) {
	query := db.Where("parent_type = ? AND parent_id = ?", parentType, parentID).
		Order("timestamp ASC")
	if !since.IsZero() {
		query = query.Where("timestamp >= ?", since)
	}

	var records []Visit
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query visits: %w", err)
	}
	return records, nil
}

// CountPendingEnrichment returns how many visits are still waiting for
// geolocation.
func CountPendingEnrichment(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&Visit{}).
		Where("enrichment_status = ?", EnrichmentPending).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count pending visits: %w", err)
	}
	return count, nil
}

// ScrubRawData blanks the raw IP, user-agent, referrer and query string
// columns of visits older than the cutoff, keeping only the derived
// attributes.
// Runs in batches with a short pause so a large backlog does not hold
// the write lock for long stretches.
func ScrubRawData(logger *slog.Logger, db *gorm.DB, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	var scrubbed int64
	for {
		var batch []uint
		err := db.Model(&Visit{}).
			Where("timestamp < ?", cutoff).
			Where("ip IS NOT NULL OR user_agent IS NOT NULL OR referrer IS NOT NULL OR query_string IS NOT NULL").
			Limit(batchSize).
			Pluck("id", &batch).Error
		if err != nil {
			return scrubbed, fmt.Errorf("failed to select visits to scrub: %w", err)
		}
		if len(batch) == 0 {
			return scrubbed, nil
		}

		err = sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
			return tx.Model(&Visit{}).Where("id IN ?", batch).Updates(map[string]any{
				"ip":           nil,
				"user_agent":   nil,
				"referrer":     nil,
				"query_string": nil,
			}).Error
		})
		if err != nil {
			return scrubbed, fmt.Errorf("failed to scrub visit batch: %w", err)
		}
		scrubbed += int64(len(batch))

		if len(batch) < batchSize {
			return scrubbed, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
}
