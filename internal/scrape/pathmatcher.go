package scrape

import (
	"net/url"
	"path"
	"strings"
)

// defaultExcludePatterns skip binary assets that carry no profile content.
var defaultExcludePatterns = []string{
	"/*.pdf",
	"/*.zip",
	"/*.jpg",
	"/*.png",
	"/*.mp4",
}

// PathMatcher filters URLs based on glob-style path patterns.
// A pattern like "/p/*" matches multi-level paths such as "/p/abc/xyz".
type PathMatcher struct {
	patterns []string
}

// NewPathMatcher creates a PathMatcher from glob patterns (e.g. "/explore/*", "/*.pdf").
// Falls back to default patterns if none are provided.
func NewPathMatcher(patterns []string) *PathMatcher {
	if len(patterns) == 0 {
		patterns = defaultExcludePatterns
	}
	return &PathMatcher{patterns: patterns}
}

// Patterns returns the configured patterns.
func (m *PathMatcher) Patterns() []string {
	return m.patterns
}

// IsExcluded reports whether a URL matches any exclude pattern. URLs that
// fail to parse, or are not absolute http(s) URLs, are excluded.
func (m *PathMatcher) IsExcluded(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return true
	}
	p := strings.ToLower(u.Path)
	for _, pattern := range m.patterns {
		if matchSegmented(strings.ToLower(pattern), p) {
			return true
		}
	}
	return false
}

// matchSegmented extends path.Match so a trailing "/*" also matches
// deeper paths under the prefix.
func matchSegmented(pattern, urlPath string) bool {
	if ok, _ := path.Match(pattern, urlPath); ok {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix := strings.TrimSuffix(pattern, "/*")
		if urlPath == prefix || strings.HasPrefix(urlPath, prefix+"/") {
			return true
		}
	}
	// Extension patterns match at any depth.
	if strings.HasPrefix(pattern, "/*.") {
		return strings.HasSuffix(urlPath, strings.TrimPrefix(pattern, "/*"))
	}
	return false
}
