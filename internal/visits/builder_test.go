package visits

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonelink/internal/attribution"
	"tonelink/internal/geo"
	"tonelink/internal/useragent"
)

func TestBuildFullyDetermined(t *testing.T) {
	v := Build(BuildInput{
		ParentType: ParentTypeLink,
		ParentID:   7,
		Kind:       KindView,
		Timestamp:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		IP:         "93.184.216.34",
		UserAgent:  "Mozilla/5.0 (iPhone) Safari/604.1",
		Referrer:   "https://l.instagram.com/",
		Classification: useragent.Classification{
			DeviceClass: useragent.DeviceMobile,
			DeviceModel: "iPhone",
			Browser:     "Safari",
			OS:          "iOS",
		},
		Attribution: attribution.Attribution{
			SocialSource: "Instagram",
			UTMCampaign:  "launch",
			ClickID:      "IwAR1",
		},
		Location: geo.Location{
			Country:     "United States",
			CountryCode: "US",
			Region:      "California",
			City:        "Los Angeles",
			Timezone:    "America/Los_Angeles",
		},
	})

	require.NotNil(t, v.DeviceClass)
	assert.Equal(t, "mobile", *v.DeviceClass)
	assert.Equal(t, "iPhone", *v.DeviceModel)
	assert.Equal(t, "Safari", *v.Browser)
	assert.Equal(t, "iOS", *v.OS)
	assert.Equal(t, "Instagram", *v.SocialSource)
	assert.Equal(t, "launch", *v.UTMCampaign)
	assert.Equal(t, "IwAR1", *v.ClickID)
	assert.Equal(t, "US", *v.CountryCode)
	assert.Equal(t, "Los Angeles", *v.City)
	assert.Equal(t, EnrichmentComplete, v.EnrichmentStatus)

	// Undetermined fields stay absent, not empty placeholders.
	assert.Nil(t, v.IsBot)
	assert.Nil(t, v.BotLabel)
	assert.Nil(t, v.UTMSource)
	assert.Nil(t, v.UTMMedium)
	assert.Nil(t, v.Platform)
	assert.Nil(t, v.ButtonLabel)
}

func TestBuildSparseWhenUndetermined(t *testing.T) {
	v := Build(BuildInput{
		ParentType: ParentTypeRelease,
		ParentID:   3,
		Kind:       KindView,
		Classification: useragent.Classification{
			DeviceClass: useragent.DeviceDesktop,
			Browser:     useragent.Unknown,
			OS:          useragent.Unknown,
		},
	})

	assert.Nil(t, v.IP)
	assert.Nil(t, v.UserAgent)
	assert.Nil(t, v.Referrer)
	assert.Nil(t, v.Browser, "Unknown must not be stored")
	assert.Nil(t, v.OS)
	assert.Nil(t, v.DeviceModel)
	assert.Nil(t, v.Country)
	assert.Nil(t, v.SocialSource)
	assert.Equal(t, EnrichmentPending, v.EnrichmentStatus)
	assert.False(t, v.Timestamp.IsZero())
}

func TestBuildBotFromClassifier(t *testing.T) {
	v := Build(BuildInput{
		ParentType: ParentTypeLink,
		ParentID:   1,
		Kind:       KindView,
		UserAgent:  "curl/8.4.0",
		Classification: useragent.Classification{
			DeviceClass: useragent.DeviceDesktop,
			Browser:     useragent.Unknown,
			OS:          useragent.Unknown,
			IsBot:       true,
			BotLabel:    "Bot",
		},
	})

	require.NotNil(t, v.IsBot)
	assert.True(t, *v.IsBot)
	assert.Equal(t, "Bot", *v.BotLabel)
}

func TestBuildPreviewCrawlerOverridesClassifier(t *testing.T) {
	// A preview proxy with a perfectly ordinary user agent.
	v := Build(BuildInput{
		ParentType: ParentTypeLink,
		ParentID:   1,
		Kind:       KindView,
		Classification: useragent.Classification{
			DeviceClass: useragent.DeviceDesktop,
			Browser:     "Chrome",
			OS:          "Windows",
		},
		Attribution: attribution.Attribution{PreviewCrawler: true},
	})

	require.NotNil(t, v.IsBot)
	assert.True(t, *v.IsBot)
	assert.Equal(t, BotLabelPreviewService, *v.BotLabel)
}

func TestBuildInteractionFields(t *testing.T) {
	v := Build(BuildInput{
		ParentType: ParentTypeRelease,
		ParentID:   2,
		Kind:       KindPlatformClick,
		Platform:   "spotify",
	})
	assert.Equal(t, "spotify", *v.Platform)

	v = Build(BuildInput{
		ParentType:  ParentTypeRelease,
		ParentID:    2,
		Kind:        KindButtonClick,
		ButtonLabel: "presave",
	})
	assert.Equal(t, "presave", *v.ButtonLabel)
}
