package useragent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	uaChromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaEdgeWindows   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91"
	uaSafariMac     = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"
	uaSafariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1"
	uaChromeAndroid = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	uaFirefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	uaOperaWindows  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36 OPR/105.0.0.0"
)

func TestClassifyBrowserPrecedence(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		expected string
	}{
		// Edge embeds a Chrome token; the Edge rule must win.
		{"edge not chrome", uaEdgeWindows, "Edge"},
		// Chrome embeds a Safari token; the Chrome rule must win.
		{"chrome not safari", uaChromeWindows, "Chrome"},
		{"safari on mac", uaSafariMac, "Safari"},
		{"safari on iphone", uaSafariIPhone, "Safari"},
		{"firefox", uaFirefoxLinux, "Firefox"},
		// Opera embeds both Chrome and Safari tokens.
		{"opera not chrome", uaOperaWindows, "Opera"},
		{"ie trident", "Mozilla/5.0 (Windows NT 6.1; Trident/7.0; rv:11.0) like Gecko", "Internet Explorer"},
		{"unrecognized browser", "Mozilla/5.0 (compatible; SomethingNew/1.0)", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.ua).Browser)
		})
	}
}

func TestClassifyOS(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		expected string
	}{
		{"windows", uaChromeWindows, "Windows"},
		{"macos", uaSafariMac, "macOS"},
		{"ios iphone", uaSafariIPhone, "iOS"},
		{"android", uaChromeAndroid, "Android"},
		// Android UAs carry a "Linux" token; Android must win.
		{"android before linux", uaChromeAndroid, "Android"},
		{"linux", uaFirefoxLinux, "Linux"},
		{"windows phone before windows", "Mozilla/5.0 (Windows Phone 10.0; Android 6.0.1; NOKIA; Lumia 635) AppleWebKit/537.36", "Windows Phone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.ua).OS)
		})
	}
}

func TestClassifyDevice(t *testing.T) {
	tests := []struct {
		name          string
		ua            string
		expectedClass string
		expectedModel string
	}{
		{"iphone", uaSafariIPhone, DeviceMobile, "iPhone"},
		{"android phone", uaChromeAndroid, DeviceMobile, "Google Pixel"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1", DeviceTablet, "iPad"},
		{"samsung phone", "Mozilla/5.0 (Linux; Android 13; SM-S911B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36", DeviceMobile, "Samsung"},
		// Android without the mobile token is a tablet.
		{"android tablet", "Mozilla/5.0 (Linux; Android 13; SM-X710) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", DeviceTablet, "Samsung"},
		{"generic android", "Mozilla/5.0 (Linux; Android 11; Unknown Thing) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.0.0 Mobile Safari/537.36", DeviceMobile, "Android Device"},
		{"desktop has no model", uaChromeWindows, DeviceDesktop, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.ua)
			assert.Equal(t, tt.expectedClass, c.DeviceClass)
			assert.Equal(t, tt.expectedModel, c.DeviceModel)
		})
	}
}

func TestClassifyBots(t *testing.T) {
	tests := []struct {
		name          string
		ua            string
		expectedLabel string
	}{
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "Google Bot"},
		{"bingbot", "Mozilla/5.0 (compatible; bingbot/2.0; +http://www.bing.com/bingbot.htm)", "Bing Bot"},
		{"facebook preview", "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)", "Facebook Link Preview"},
		{"slack preview", "Slackbot-LinkExpanding 1.0 (+https://api.slack.com/robots)", "Slack Link Preview"},
		{"whatsapp preview", "WhatsApp/2.23.20.0", "WhatsApp Link Preview"},
		{"uptime monitor", "Mozilla/5.0+(compatible; UptimeRobot/2.0; http://www.uptimerobot.com/)", "Uptime Monitor"},
		{"curl", "curl/8.4.0", "Bot"},
		{"python requests", "python-requests/2.31.0", "Bot"},
		{"headless chrome", "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/120.0.0.0 Safari/537.36", "Bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classify(tt.ua)
			assert.True(t, c.IsBot, "expected bot")
			assert.Equal(t, tt.expectedLabel, c.BotLabel)
		})
	}
}

func TestClassifyShortUserAgent(t *testing.T) {
	for _, ua := range []string{"", "Mozilla", "abc", "   "} {
		c := Classify(ua)
		assert.True(t, c.IsBot)
		assert.Equal(t, BotLabelSuspicious, c.BotLabel)
		assert.Equal(t, Unknown, c.Browser)
		assert.Equal(t, Unknown, c.OS)
	}
}

func TestClassifyRealBrowserIsNotBot(t *testing.T) {
	for _, ua := range []string{uaChromeWindows, uaSafariIPhone, uaChromeAndroid, uaFirefoxLinux} {
		c := Classify(ua)
		assert.False(t, c.IsBot, "ua %q should not be a bot", ua)
		assert.Empty(t, c.BotLabel)
	}
}
