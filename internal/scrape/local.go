package scrape

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/resilience"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxBodyBytes     = 4 << 20
	localTimeout     = 20 * time.Second
)

// LocalFetcher fetches HTML via net/http and applies selectors locally. It
// cannot run scripts, so pages whose wait-for selector is missing from the
// static HTML fail over to a rendering fetcher.
type LocalFetcher struct {
	transport http.RoundTripper
	userAgent string

	mu   sync.Mutex
	jars map[string]http.CookieJar
}

// LocalOption configures a LocalFetcher.
type LocalOption func(*LocalFetcher)

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) LocalOption {
	return func(l *LocalFetcher) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

// WithTransport sets the round tripper (for testing).
func WithTransport(rt http.RoundTripper) LocalOption {
	return func(l *LocalFetcher) { l.transport = rt }
}

// NewLocalFetcher creates a LocalFetcher with sensible defaults.
func NewLocalFetcher(opts ...LocalOption) *LocalFetcher {
	l := &LocalFetcher{
		transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: 10 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		userAgent: defaultUserAgent,
		jars:      make(map[string]http.CookieJar),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LocalFetcher) Name() string           { return "local" }
func (l *LocalFetcher) Supports(_ string) bool { return true }

// jar returns the cookie jar for a session, creating it on first use.
// An empty session shares no cookies.
func (l *LocalFetcher) jar(session string) http.CookieJar {
	if session == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if j, ok := l.jars[session]; ok {
		return j
	}
	j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil
	}
	l.jars[session] = j
	return j
}

// Fetch retrieves a URL, decodes its charset, detects blocks and applies
// the selectors in cfg.
func (l *LocalFetcher) Fetch(ctx context.Context, targetURL string, cfg RunConfig) (*model.FetchResult, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = localTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en;q=0.8")

	client := &http.Client{Transport: l.transport, Jar: l.jar(cfg.SessionID)}
	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "local: read body")
	}

	if blocked, blockType := DetectBlock(resp, body); blocked {
		err := eris.Errorf("local: blocked (%s)", blockType)
		if resp.StatusCode >= 400 {
			err = resilience.StatusError(err, resp.StatusCode)
		}
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, resilience.StatusError(eris.Errorf("local: status %d", resp.StatusCode), resp.StatusCode)
	}

	body = decodeCharset(body, resp.Header.Get("Content-Type"))

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "local: parse html")
	}

	if cfg.WaitFor != "" && doc.Find(cfg.WaitFor).Length() == 0 {
		return nil, eris.Errorf("local: wait-for selector %q not present in static html", cfg.WaitFor)
	}

	result := &model.FetchResult{
		URL:        resp.Request.URL.String(),
		Success:    true,
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:       string(body),
		StatusCode: resp.StatusCode,
		Source:     "local",
	}
	if cfg.CSSSelector != "" {
		result.ExtractedContent = selectOuterHTML(doc, cfg.CSSSelector)
	}
	result.Markdown = visibleText(doc)

	if result.ExtractedContent == "" && len(strings.TrimSpace(result.Markdown)) == 0 && !hasMeta(doc) {
		return nil, eris.New("local: empty page")
	}
	return result, nil
}

// decodeCharset converts body to UTF-8 using the Content-Type charset or a
// <meta charset> declaration. Unknown charsets leave the body unchanged.
func decodeCharset(body []byte, contentType string) []byte {
	name := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		name = params["charset"]
	}
	if name == "" {
		name = metaCharset(body)
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return body
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}

// metaCharset sniffs a charset declaration from the first KB of a document.
func metaCharset(body []byte) string {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	lower := strings.ToLower(string(head))
	i := strings.Index(lower, "charset=")
	if i < 0 {
		return ""
	}
	rest := strings.TrimLeft(lower[i+len("charset="):], `"' `)
	end := strings.IndexAny(rest, `"'; />`)
	if end < 0 {
		return rest
	}
	return rest[:end]
}

func selectOuterHTML(doc *goquery.Document, selector string) string {
	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if h, err := goquery.OuterHtml(s); err == nil && strings.TrimSpace(h) != "" {
			parts = append(parts, h)
		}
	})
	return strings.Join(parts, "\n")
}

// visibleText returns the whitespace-collapsed body text without scripts,
// styles or navigation chrome.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, nav, footer, svg").Remove()
	var lines []string
	for _, line := range strings.Split(body.Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func hasMeta(doc *goquery.Document) bool {
	return doc.Find(`meta[property^="og:"], meta[name="description"]`).Length() > 0
}
