package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector-cli/internal/extract"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/schema"
	"github.com/sells-group/prospector-cli/internal/scrape"
)

type stubFetcher struct {
	res  *model.FetchResult
	err  error
	cfgs []scrape.RunConfig
}

func (f *stubFetcher) Name() string           { return "stub" }
func (f *stubFetcher) Supports(_ string) bool { return true }
func (f *stubFetcher) Fetch(_ context.Context, url string, cfg scrape.RunConfig) (*model.FetchResult, error) {
	f.cfgs = append(f.cfgs, cfg)
	if f.err != nil {
		return nil, f.err
	}
	res := *f.res
	res.URL = url
	return &res, nil
}

type stubExtractor struct {
	payload extract.Payload
	err     error
	reqs    []extract.Request
}

func (e *stubExtractor) Extract(_ context.Context, req extract.Request) (extract.Payload, error) {
	e.reqs = append(e.reqs, req)
	return e.payload, e.err
}

func profilePage() *model.FetchResult {
	return &model.FetchResult{Success: true, Markdown: "# Maria Doces\nBolos caseiros", Source: "local"}
}

func TestEnricher_StringListPayload(t *testing.T) {
	f := &stubFetcher{res: profilePage()}
	e := &stubExtractor{payload: extract.Text(`[{"profile_url":"http://x/a","bio":"hi"}]`)}
	run := scrape.RunConfig{WaitFor: "article", SessionID: "profile_session", BypassCache: true}
	en := NewEnricher(f, e, schema.Profile(), run, "Extract the profile.")

	got, err := en.Enrich(context.Background(), "http://x/a")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"profile_url": "http://x/a", "bio": "hi"}, got)

	require.Len(t, e.reqs, 1)
	assert.Equal(t, "http://x/a", e.reqs[0].URL)
	assert.Equal(t, "Extract the profile.", e.reqs[0].Instruction)
	assert.Equal(t, "profile", e.reqs[0].Schema.Name)
	assert.Contains(t, e.reqs[0].Content, "Bolos caseiros")
	assert.Equal(t, run, f.cfgs[0])
}

func TestEnricher_IdentifierFallback(t *testing.T) {
	e := &stubExtractor{payload: extract.Object(map[string]any{"username": "mariadoces"})}
	en := NewEnricher(&stubFetcher{res: profilePage()}, e, schema.Profile(), scrape.RunConfig{}, "")

	got, err := en.Enrich(context.Background(), "https://www.instagram.com/mariadoces/")
	require.NoError(t, err)
	assert.Equal(t, "https://www.instagram.com/mariadoces/", got["profile_url"])
	assert.Equal(t, "mariadoces", got["username"])
}

func TestEnricher_MismatchedURL(t *testing.T) {
	e := &stubExtractor{payload: extract.Object(map[string]any{"profile_url": "http://x/other", "bio": "hi"})}
	en := NewEnricher(&stubFetcher{res: profilePage()}, e, schema.Profile(), scrape.RunConfig{}, "")

	got, err := en.Enrich(context.Background(), "http://x/a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEnricher_Failures(t *testing.T) {
	_, err := NewEnricher(&stubFetcher{err: errors.New("all fetchers failed")}, &stubExtractor{}, schema.Profile(), scrape.RunConfig{}, "").
		Enrich(context.Background(), "http://x/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch http://x/a")

	_, err = NewEnricher(&stubFetcher{res: profilePage()}, &stubExtractor{err: errors.New("overloaded")}, schema.Profile(), scrape.RunConfig{}, "").
		Enrich(context.Background(), "http://x/a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestEnricher_MalformedPayload(t *testing.T) {
	for _, p := range []extract.Payload{extract.None(), extract.Text(""), extract.Text("{not json"), extract.List(nil)} {
		e := &stubExtractor{payload: p}
		got, err := NewEnricher(&stubFetcher{res: profilePage()}, e, schema.Profile(), scrape.RunConfig{}, "").
			Enrich(context.Background(), "http://x/a")
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}
