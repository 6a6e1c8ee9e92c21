// Package attribution resolves the marketing origin of a visit from the
// referrer URL and the visited page's own query parameters. Resolution is
// pure and total: malformed input degrades to weaker matching, never to
// an error.
package attribution

import (
	_ "embed"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed tables/sources.yaml
var sourcesYAML []byte

// Attribution carries every signal the resolver could extract. Fields are
// independent: a visit can have a click id without a social source and
// vice versa. Empty string means the signal was absent.
type Attribution struct {
	SocialSource string
	UTMSource    string
	UTMMedium    string
	UTMCampaign  string
	UTMContent   string
	UTMTerm      string
	ClickID      string

	// PreviewCrawler is set when the referrer identifies a link-preview
	// proxy service. Those fetch pages with generic user agents, so the
	// caller must treat the visit as a bot regardless of user-agent
	// classification.
	PreviewCrawler bool
}

type sourceTables struct {
	Aliases          map[string]string `yaml:"aliases"`
	Domains          map[string]string `yaml:"domains"`
	ClickIDs         map[string]string `yaml:"click_ids"`
	PreviewReferrers []string          `yaml:"preview_referrers"`
}

var (
	tables     sourceTables
	loadTables sync.Once
)

// clickIDParams is the probe order for ad-network click identifiers.
// Map iteration order is random, so the order lives here.
var clickIDParams = []string{"fbclid", "gclid", "wbraid", "gbraid", "ttclid", "msclkid", "twclid", "li_fat_id"}

var titleCaser = cases.Title(language.English)

func loadedTables() sourceTables {
	loadTables.Do(func() {
		if err := yaml.Unmarshal(sourcesYAML, &tables); err != nil {
			panic("attribution: invalid embedded sources.yaml: " + err.Error())
		}
	})
	return tables
}

// Resolve extracts UTM fields, click identifiers and a social source
// label from the referrer and the current page's query parameters.
//
// UTM fields prefer the page's own parameters; parameters embedded in
// the referrer URL only fill fields the page left empty. The social
// source follows a fixed priority: explicit utm_source, then referrer
// domain, then click identifier as a last resort.
func Resolve(referrer string, pageParams url.Values) Attribution {
	t := loadedTables()

	referrerParams := referrerQuery(referrer)

	a := Attribution{
		UTMSource:   pickParam("utm_source", pageParams, referrerParams),
		UTMMedium:   pickParam("utm_medium", pageParams, referrerParams),
		UTMCampaign: pickParam("utm_campaign", pageParams, referrerParams),
		UTMContent:  pickParam("utm_content", pageParams, referrerParams),
		UTMTerm:     pickParam("utm_term", pageParams, referrerParams),
	}

	var clickIDPlatform string
	for _, param := range clickIDParams {
		if v := pickParam(param, pageParams, referrerParams); v != "" {
			a.ClickID = v
			clickIDPlatform = t.ClickIDs[param]
			break
		}
	}

	a.SocialSource = resolveSocialSource(t, a.UTMSource, referrer, clickIDPlatform)
	a.PreviewCrawler = isPreviewReferrer(t, referrer)
	return a
}

func pickParam(key string, page, referrer url.Values) string {
	if v := strings.TrimSpace(page.Get(key)); v != "" {
		return v
	}
	return strings.TrimSpace(referrer.Get(key))
}

// referrerQuery returns the referrer URL's query parameters, or an empty
// set when the referrer does not parse.
func referrerQuery(referrer string) url.Values {
	if referrer == "" {
		return url.Values{}
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return url.Values{}
	}
	return u.Query()
}

func resolveSocialSource(t sourceTables, utmSource, referrer, clickIDPlatform string) string {
	if utmSource != "" {
		if label, ok := t.Aliases[strings.ToLower(utmSource)]; ok {
			return label
		}
		// Unknown sources are still worth recording, just normalized.
		return titleCaser.String(strings.ToLower(utmSource))
	}

	if label := matchReferrerDomain(t, referrer); label != "" {
		return label
	}

	return clickIDPlatform
}

// matchReferrerDomain resolves the referrer hostname against the domain
// table, longest match wins so that l.instagram.com beats instagram.com.
// A referrer with no parseable hostname falls back to substring matching
// over the whole string, using the domain table plus the alias tokens.
func matchReferrerDomain(t sourceTables, referrer string) string {
	if referrer == "" {
		return ""
	}

	haystack := referrer
	parsed := false
	if u, err := url.Parse(referrer); err == nil && u.Hostname() != "" {
		haystack = u.Hostname()
		parsed = true
	}
	haystack = strings.ToLower(strings.TrimPrefix(haystack, "www."))

	var bestLabel string
	bestLen := 0
	for domain, label := range t.Domains {
		if len(domain) > bestLen && strings.Contains(haystack, domain) {
			bestLabel = label
			bestLen = len(domain)
		}
	}
	if bestLabel != "" || parsed {
		return bestLabel
	}

	// Substring fallback. Two-letter aliases are too ambiguous to match
	// inside an arbitrary string.
	for alias, label := range t.Aliases {
		if len(alias) > bestLen && len(alias) >= 3 && strings.Contains(haystack, alias) {
			bestLabel = label
			bestLen = len(alias)
		}
	}
	return bestLabel
}

func isPreviewReferrer(t sourceTables, referrer string) bool {
	if referrer == "" {
		return false
	}
	lowered := strings.ToLower(referrer)
	for _, pattern := range t.PreviewReferrers {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
