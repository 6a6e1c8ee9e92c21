package releases

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"gorm.io/gorm"
)

// ReleasePageNotFoundError represents an error when a release page is not found
type ReleasePageNotFoundError struct {
	Slug string
}

func (e *ReleasePageNotFoundError) Error() string {
	return fmt.Sprintf("release page not found for slug: %s", e.Slug)
}

// NewReleasePageNotFoundError creates a new ReleasePageNotFoundError
func NewReleasePageNotFoundError(slug string) *ReleasePageNotFoundError {
	return &ReleasePageNotFoundError{Slug: slug}
}

// PlatformLink points to one streaming platform for a release
type PlatformLink struct {
	Platform string `json:"platform"` // e.g. "spotify", "apple_music"
	URL      string `json:"url"`
}

// ReleasePage represents a music smart-link landing page listing a
// release's streaming platforms
type ReleasePage struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Slug        string    `gorm:"uniqueIndex;not null;size:64" json:"slug"`
	ArtistName  string    `gorm:"not null" json:"artist_name"`
	Title       string    `gorm:"not null" json:"title"`
	CoverArtURL string    `json:"cover_art_url"`
	ReleaseType string    `gorm:"size:16" json:"release_type"` // "single", "ep" or "album"
	Platforms   string    `json:"-"` // JSON-encoded []PlatformLink
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	Views       int64     `gorm:"default:0" json:"views"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PlatformLinks decodes the stored platform list. An empty or corrupt
// column decodes to an empty list rather than an error.
func (r *ReleasePage) PlatformLinks() []PlatformLink {
	if r.Platforms == "" {
		return nil
	}
	var links []PlatformLink
	if err := json.Unmarshal([]byte(r.Platforms), &links); err != nil {
		return nil
	}
	return links
}

// SetPlatformLinks encodes and stores the platform list
func (r *ReleasePage) SetPlatformLinks(links []PlatformLink) error {
	encoded, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("encode platform links: %w", err)
	}
	r.Platforms = string(encoded)
	return nil
}

// GetReleaseBySlug retrieves an active release page by its slug
func GetReleaseBySlug(db *gorm.DB, slug string) (*ReleasePage, error) {
	var release ReleasePage
	if err := db.Where("slug = ? AND is_active = ?", slug, true).First(&release).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, NewReleasePageNotFoundError(slug)
		}
		return nil, fmt.Errorf("unexpected error querying release page: %w", err)
	}
	return &release, nil
}

// GetReleaseByID retrieves a release page by its ID
func GetReleaseByID(db *gorm.DB, id uint) (*ReleasePage, error) {
	var release ReleasePage
	if err := db.First(&release, id).Error; err != nil {
		return nil, err
	}
	return &release, nil
}

// CreateRelease creates a new release page
func CreateRelease(db *gorm.DB, release *ReleasePage) error {
	release.CreatedAt = time.Now().UTC()
	release.IsActive = true
	return db.Create(release).Error
}

// IncrementViews bumps the page's view counter by reading the current
// value and writing it back incremented. Same accepted race as the
// short link click counter.
func IncrementViews(tx *gorm.DB, id uint) error {
	var release ReleasePage
	if err := tx.First(&release, id).Error; err != nil {
		return fmt.Errorf("read release for counter: %w", err)
	}
	return tx.Model(&ReleasePage{}).Where("id = ?", id).Update("views", release.Views+1).Error
}
