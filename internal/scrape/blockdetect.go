package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockLoginWall  BlockType = "login_wall"
	BlockRateLimit  BlockType = "rate_limit"
)

// bodyMarker ties a lowercase body substring to the block it signals.
type bodyMarker struct {
	marker string
	block  BlockType
}

var bodyMarkers = []bodyMarker{
	{"checking your browser", BlockCloudflare},
	{"cf-browser-verification", BlockCloudflare},
	{"captcha", BlockCaptcha},
}

// loginPaths are redirect targets that mean a profile is behind a login.
var loginPaths = []string{"/accounts/login", "/login", "/signin", "/checkpoint"}

// DetectBlock checks an HTTP response for anti-bot protection, login walls
// and throttling. Profile sites answer blocked requests with 200 pages as
// often as with error codes, so the body is inspected too.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return true, BlockRateLimit
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("cf-cache-status") != "" ||
			strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	// Redirected to a login page.
	if resp.Request != nil && resp.Request.URL != nil {
		p := strings.ToLower(resp.Request.URL.Path)
		for _, lp := range loginPaths {
			if strings.HasPrefix(p, lp) {
				return true, BlockLoginWall
			}
		}
	}

	lower := strings.ToLower(string(body))

	for _, m := range bodyMarkers {
		if strings.Contains(lower, m.marker) {
			return true, m.block
		}
	}
	if strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge") {
		return true, BlockCloudflare
	}

	// Small shells: noscript gates, meta refreshes and bare login forms.
	if len(body) < 2000 {
		switch {
		case strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript"):
			return true, BlockJSShell
		case strings.Contains(lower, `meta http-equiv="refresh"`):
			return true, BlockJSShell
		case strings.Contains(lower, `type="password"`):
			return true, BlockLoginWall
		}
	}

	return false, BlockNone
}
