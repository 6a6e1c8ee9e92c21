// Package useragent classifies raw user-agent strings into device,
// browser, OS and bot labels. Classification is a pure, total function:
// unrecognized input yields "Unknown" rather than an error.
package useragent

import (
	"strings"
	"sync"

	"go.elara.ws/pcre"
)

// Device classes
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

const Unknown = "Unknown"

// BotLabelSuspicious marks user agents that are empty or too short to be
// a real browser. Kept distinct from pattern-matched bot labels.
const BotLabelSuspicious = "Suspicious User Agent"

// minPlausibleLength is the shortest user-agent string a real browser sends.
const minPlausibleLength = 10

// Classification is the result of classifying a user-agent string.
type Classification struct {
	DeviceClass string
	DeviceModel string
	Browser     string
	OS          string
	IsBot       bool
	BotLabel    string
}

// Compiled regex cache for bot pattern groups
type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *regexCache {
	return &regexCache{compiled: make(map[string]*pcre.Regexp)}
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var botRegexes = newRegexCache()

// botGroup is one labeled group of bot patterns. Groups are evaluated in
// order, most specific first; the first matching group supplies the label.
type botGroup struct {
	Label   string
	Pattern string // pcre pattern matched against the lowercased UA
}

// Ordered: named crawlers and services before the generic catch-all.
var botGroups = []botGroup{
	{"Google Bot", `googlebot|google-inspectiontool|adsbot-google|mediapartners-google`},
	{"Bing Bot", `bingbot|bingpreview|msnbot`},
	{"DuckDuckGo Bot", `duckduckbot|duckduckgo`},
	{"Yandex Bot", `yandexbot|yandeximages`},
	{"Baidu Spider", `baiduspider`},
	{"Yahoo Slurp", `slurp`},
	{"Facebook Link Preview", `facebookexternalhit|facebookcatalog|facebot`},
	{"Twitter Link Preview", `twitterbot`},
	{"LinkedIn Link Preview", `linkedinbot`},
	{"Slack Link Preview", `slackbot|slack-imgproxy`},
	{"Discord Link Preview", `discordbot`},
	{"Telegram Link Preview", `telegrambot`},
	{"WhatsApp Link Preview", `whatsapp`},
	{"Pinterest Bot", `pinterestbot|pinterest/`},
	{"Skype Link Preview", `skypeuripreview`},
	{"Email Client", `thunderbird|microsoft outlook|outlook-express|mailbar|postbox/`},
	{"Email Scanner", `mimecast|proofpoint|barracuda|mailscanner`},
	{"Uptime Monitor", `uptimerobot|pingdom|statuscake|site24x7|uptime-kuma|betteruptime`},
	{"Security Scanner", `censysinspect|shodan|nuclei|nmap|masscan|qualys|nessus|zgrab`},
	{"Bot", `bot\b|crawler|spider|scraper|headless|phantomjs|puppeteer|playwright|selenium|curl/|wget/|python-requests|python-urllib|go-http-client|okhttp|java/|httpclient|libwww`},
}

// osRule maps mutually-exclusive OS tokens to a label. First match wins.
type osRule struct {
	Tokens []string
	Label  string
}

// Windows Phone before Windows and Android: its UA carries both tokens.
// Android before Linux: Android UAs contain "linux".
var osRules = []osRule{
	{[]string{"windows phone"}, "Windows Phone"},
	{[]string{"android"}, "Android"},
	{[]string{"iphone", "ipad", "ipod"}, "iOS"},
	{[]string{"windows"}, "Windows"},
	{[]string{"mac os x", "macintosh"}, "macOS"},
	{[]string{"cros"}, "Chrome OS"},
	{[]string{"linux", "x11"}, "Linux"},
}

// browserRule pairs match tokens with explicit exclusions so that
// engine-spoofing overlap (Edge contains "chrome", Chrome contains
// "safari") stays visible instead of buried in nested conditionals.
type browserRule struct {
	Label   string
	Tokens  []string
	Exclude []string
}

var browserRules = []browserRule{
	{"Edge", []string{"edg/", "edge/", "edga/", "edgios/"}, nil},
	{"Chrome", []string{"chrome/", "crios/"}, []string{"edg", "opr/"}},
	{"Safari", []string{"safari/"}, []string{"chrome/", "crios/", "edg", "android"}},
	{"Firefox", []string{"firefox/", "fxios/"}, nil},
	{"Opera", []string{"opr/", "opera"}, nil},
	{"Internet Explorer", []string{"msie", "trident/"}, nil},
}

// modelRule identifies a handheld device model by vendor token.
type modelRule struct {
	Tokens []string
	Label  string
}

// iPad before iPhone is irrelevant here (disjoint tokens); specific
// vendor tokens before the per-OS generic fallback.
var modelRules = []modelRule{
	{[]string{"ipad"}, "iPad"},
	{[]string{"ipod"}, "iPod"},
	{[]string{"iphone"}, "iPhone"},
	{[]string{"samsung", "sm-"}, "Samsung"},
	{[]string{"huawei"}, "Huawei"},
	{[]string{"xiaomi", "redmi"}, "Xiaomi"},
	{[]string{"oneplus"}, "OnePlus"},
	{[]string{"pixel"}, "Google Pixel"},
	{[]string{"oppo"}, "Oppo"},
	{[]string{"vivo"}, "Vivo"},
	{[]string{"moto", "motorola"}, "Motorola"},
	{[]string{"nokia"}, "Nokia"},
	{[]string{"kindle", "silk"}, "Kindle"},
}

func containsAny(haystack string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}

// Classify derives device, browser, OS and bot information from a raw
// user-agent string. It never fails: unrecognized patterns come back as
// Unknown, and empty or implausibly short strings classify as bots.
func Classify(userAgent string) Classification {
	ua := strings.ToLower(strings.TrimSpace(userAgent))

	// Empty or near-empty user agents are a bot signal on their own,
	// independent of pattern matching.
	if len(ua) < minPlausibleLength {
		return Classification{
			DeviceClass: DeviceDesktop,
			Browser:     Unknown,
			OS:          Unknown,
			IsBot:       true,
			BotLabel:    BotLabelSuspicious,
		}
	}

	if label, ok := matchBot(ua); ok {
		return Classification{
			DeviceClass: DeviceDesktop,
			Browser:     Unknown,
			OS:          Unknown,
			IsBot:       true,
			BotLabel:    label,
		}
	}

	deviceClass := classifyDeviceClass(ua)

	c := Classification{
		DeviceClass: deviceClass,
		DeviceModel: classifyDeviceModel(ua, deviceClass),
		Browser:     classifyBrowser(ua),
		OS:          classifyOS(ua),
	}
	return c
}

func matchBot(ua string) (string, bool) {
	for _, group := range botGroups {
		regex, err := botRegexes.get(group.Pattern)
		if err != nil {
			continue
		}
		if regex.MatchString(ua) {
			return group.Label, true
		}
	}
	return "", false
}

// classifyDeviceClass checks mobile tokens before tablet tokens before
// defaulting to desktop. Android tablets advertise "android" without
// "mobile", so the android check is split across the two branches.
func classifyDeviceClass(ua string) string {
	if containsAny(ua, []string{"iphone", "ipod", "windows phone", "blackberry"}) {
		return DeviceMobile
	}
	if strings.Contains(ua, "android") && strings.Contains(ua, "mobile") {
		return DeviceMobile
	}
	if containsAny(ua, []string{"ipad", "tablet", "kindle", "silk"}) {
		return DeviceTablet
	}
	if strings.Contains(ua, "android") {
		return DeviceTablet
	}
	if strings.Contains(ua, "mobile") {
		return DeviceMobile
	}
	return DeviceDesktop
}

// classifyDeviceModel resolves a vendor model for handheld devices and
// falls back to a generic label per OS family. Desktops carry no model.
func classifyDeviceModel(ua, deviceClass string) string {
	if deviceClass == DeviceDesktop {
		return ""
	}

	for _, rule := range modelRules {
		if containsAny(ua, rule.Tokens) {
			return rule.Label
		}
	}

	switch {
	case strings.Contains(ua, "android"):
		return "Android Device"
	case strings.Contains(ua, "windows phone"):
		return "Windows Phone Device"
	case deviceClass == DeviceTablet:
		return "Tablet"
	default:
		return "Mobile Device"
	}
}

func classifyOS(ua string) string {
	for _, rule := range osRules {
		if containsAny(ua, rule.Tokens) {
			return rule.Label
		}
	}
	return Unknown
}

func classifyBrowser(ua string) string {
	for _, rule := range browserRules {
		if !containsAny(ua, rule.Tokens) {
			continue
		}
		if rule.Exclude != nil && containsAny(ua, rule.Exclude) {
			continue
		}
		return rule.Label
	}
	return Unknown
}
