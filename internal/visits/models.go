package visits

import (
	"time"
)

// ParentType identifies which kind of entity a visit belongs to
const (
	ParentTypeLink    = "link"
	ParentTypeRelease = "release"
)

// Visit kinds
const (
	KindView          = "view"
	KindPlatformClick = "platform_click"
	KindButtonClick   = "button_click"
)

// Enrichment statuses
const (
	EnrichmentPending  = "pending"
	EnrichmentComplete = "complete"
	EnrichmentFailed   = "failed"
)

// Visit is one logged visitor interaction with a short link or release
// page. Derived attributes use pointer columns so that undetermined
// values stay absent (NULL) instead of being stored as placeholder
// empty strings; downstream aggregation relies on that distinction.
type Visit struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ParentType string    `gorm:"index:idx_visits_parent;not null;size:16" json:"parent_type"`
	ParentID   uint      `gorm:"index:idx_visits_parent;not null" json:"parent_id"`
	Kind       string    `gorm:"not null;size:24" json:"kind"`
	Timestamp  time.Time `gorm:"index;not null" json:"timestamp"`

	// Raw inputs, retained for audit and deferred enrichment. Blanked
	// by the retention cleanup job after the configured window.
	IP          *string `json:"ip,omitempty"`
	UserAgent   *string `json:"user_agent,omitempty"`
	Referrer    *string `json:"referrer,omitempty"`
	QueryString *string `json:"query_string,omitempty"`

	DeviceClass *string `gorm:"size:16" json:"device_class,omitempty"`
	DeviceModel *string `gorm:"size:64" json:"device_model,omitempty"`
	Browser     *string `gorm:"size:64" json:"browser,omitempty"`
	OS          *string `gorm:"size:64" json:"os,omitempty"`
	IsBot       *bool   `json:"is_bot,omitempty"`
	BotLabel    *string `gorm:"size:64" json:"bot_label,omitempty"`

	Country     *string `gorm:"size:64" json:"country,omitempty"`
	CountryCode *string `gorm:"size:8" json:"country_code,omitempty"`
	Region      *string `gorm:"size:64" json:"region,omitempty"`
	City        *string `gorm:"size:64" json:"city,omitempty"`
	Timezone    *string `gorm:"size:64" json:"timezone,omitempty"`

	SocialSource *string `gorm:"size:64" json:"social_source,omitempty"`
	UTMSource    *string `gorm:"size:128" json:"utm_source,omitempty"`
	UTMMedium    *string `gorm:"size:128" json:"utm_medium,omitempty"`
	UTMCampaign  *string `gorm:"size:128" json:"utm_campaign,omitempty"`
	UTMContent   *string `gorm:"size:128" json:"utm_content,omitempty"`
	UTMTerm      *string `gorm:"size:128" json:"utm_term,omitempty"`
	ClickID      *string `gorm:"size:255" json:"click_id,omitempty"`

	Platform    *string `gorm:"size:64" json:"platform,omitempty"`
	ButtonLabel *string `gorm:"size:128" json:"button_label,omitempty"`

	EnrichmentStatus   string    `gorm:"index;not null;default:'pending';size:12" json:"enrichment_status"`
	EnrichmentAttempts int       `gorm:"default:0" json:"enrichment_attempts"`
	CreatedAt          time.Time `json:"created_at"`
}

// HasLocation reports whether geolocation has already been resolved for
// this visit. The enrichment job only touches visits where this is false.
func (v *Visit) HasLocation() bool {
	return deref(v.Country) != "" || deref(v.CountryCode) != ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ptr returns a pointer to s, or nil when s is empty, keeping optional
// columns sparse.
func ptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
