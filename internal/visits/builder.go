package visits

import (
	"time"

	"tonelink/internal/attribution"
	"tonelink/internal/geo"
	"tonelink/internal/useragent"
)

// BotLabelPreviewService is the bot label applied when the referrer
// identified a link-preview proxy, regardless of user-agent.
const BotLabelPreviewService = "Link Preview Service"

// BuildInput combines the raw request metadata with the classifier,
// attribution and geolocation outputs for one visit.
type BuildInput struct {
	ParentType string
	ParentID   uint
	Kind       string
	Timestamp  time.Time

	IP        string
	UserAgent string
	Referrer  string
	// Encoded query string of the visited page URL.
	QueryString string

	// Set for platform_click and button_click visits respectively.
	Platform    string
	ButtonLabel string

	Classification useragent.Classification
	Attribution    attribution.Attribution
	Location       geo.Location
}

// Build assembles a normalized Visit from the derived inputs. Only
// determined values are set; everything else stays nil so the stored
// record is sparse. Enrichment starts pending whenever geolocation was
// not resolved, whether or not an IP is on hand, so the deferred job
// gets a chance to revisit the record.
func Build(in BuildInput) Visit {
	timestamp := in.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	v := Visit{
		ParentType: in.ParentType,
		ParentID:   in.ParentID,
		Kind:       in.Kind,
		Timestamp:  timestamp,
		IP:          ptr(in.IP),
		UserAgent:   ptr(in.UserAgent),
		Referrer:    ptr(in.Referrer),
		QueryString: ptr(in.QueryString),

		Platform:    ptr(in.Platform),
		ButtonLabel: ptr(in.ButtonLabel),

		SocialSource: ptr(in.Attribution.SocialSource),
		UTMSource:    ptr(in.Attribution.UTMSource),
		UTMMedium:    ptr(in.Attribution.UTMMedium),
		UTMCampaign:  ptr(in.Attribution.UTMCampaign),
		UTMContent:   ptr(in.Attribution.UTMContent),
		UTMTerm:      ptr(in.Attribution.UTMTerm),
		ClickID:      ptr(in.Attribution.ClickID),

		Country:     ptr(in.Location.Country),
		CountryCode: ptr(in.Location.CountryCode),
		Region:      ptr(in.Location.Region),
		City:        ptr(in.Location.City),
		Timezone:    ptr(in.Location.Timezone),
	}

	c := in.Classification
	if c.DeviceClass != "" && c.DeviceClass != useragent.Unknown {
		v.DeviceClass = ptr(c.DeviceClass)
	}
	v.DeviceModel = ptr(c.DeviceModel)
	if c.Browser != "" && c.Browser != useragent.Unknown {
		v.Browser = ptr(c.Browser)
	}
	if c.OS != "" && c.OS != useragent.Unknown {
		v.OS = ptr(c.OS)
	}

	isBot := c.IsBot
	botLabel := c.BotLabel
	// Preview proxies fetch with ordinary-looking user agents; the
	// referrer signal overrides whatever the classifier said.
	if in.Attribution.PreviewCrawler {
		isBot = true
		botLabel = BotLabelPreviewService
	}
	if isBot {
		v.IsBot = &isBot
		v.BotLabel = ptr(botLabel)
	}

	if v.HasLocation() {
		v.EnrichmentStatus = EnrichmentComplete
	} else {
		v.EnrichmentStatus = EnrichmentPending
	}
	return v
}
