package links

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// LinkNotFoundError represents an error when a short link is not found
type LinkNotFoundError struct {
	Slug string
}

func (e *LinkNotFoundError) Error() string {
	return fmt.Sprintf("short link not found for slug: %s", e.Slug)
}

// NewLinkNotFoundError creates a new LinkNotFoundError
func NewLinkNotFoundError(slug string) *LinkNotFoundError {
	return &LinkNotFoundError{Slug: slug}
}

// ShortLink represents a shortened URL that redirects visitors to a target
type ShortLink struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug      string    `gorm:"uniqueIndex;not null;size:64" json:"slug"`
	TargetURL string    `gorm:"not null" json:"target_url"`
	Title     string    `json:"title"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	Clicks    int64     `gorm:"default:0" json:"clicks"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetLinkBySlug retrieves an active short link by its slug
func GetLinkBySlug(db *gorm.DB, slug string) (*ShortLink, error) {
	var link ShortLink
	if err := db.Where("slug = ? AND is_active = ?", slug, true).First(&link).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewLinkNotFoundError(slug)
		}
		return nil, fmt.Errorf("unexpected error querying short link: %w", err)
	}
	return &link, nil
}

// GetLinkByID retrieves a short link by its ID
func GetLinkByID(db *gorm.DB, id uint) (*ShortLink, error) {
	var link ShortLink
	if err := db.First(&link, id).Error; err != nil {
		return nil, err
	}
	return &link, nil
}

// CreateLink creates a new short link
func CreateLink(db *gorm.DB, link *ShortLink) error {
	link.CreatedAt = time.Now().UTC()
	link.IsActive = true
	return db.Create(link).Error
}

// IncrementClicks bumps the link's click counter by reading the current
// value and writing it back incremented. Concurrent visits can race and
// under-count; the counter is a convenience display figure, the visit
// records are the source of truth.
func IncrementClicks(tx *gorm.DB, id uint) error {
	var link ShortLink
	if err := tx.First(&link, id).Error; err != nil {
		return fmt.Errorf("read link for counter: %w", err)
	}
	return tx.Model(&ShortLink{}).Where("id = ?", id).Update("clicks", link.Clicks+1).Error
}
