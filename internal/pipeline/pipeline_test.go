package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector-cli/internal/extract"
	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/schema"
	"github.com/sells-group/prospector-cli/internal/scrape"
	"github.com/sells-group/prospector-cli/internal/search"
	"github.com/sells-group/prospector-cli/internal/table"
)

type fakeSource struct {
	pages map[int]*search.Page
	errs  map[int]error
	calls []int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchPage(_ context.Context, n int) (*search.Page, error) {
	f.calls = append(f.calls, n)
	if err := f.errs[n]; err != nil {
		return nil, err
	}
	if p, ok := f.pages[n]; ok {
		return p, nil
	}
	return &search.Page{Number: n, NoResults: true}, nil
}

type fakeRecorder struct {
	runs     []model.Run
	statuses []model.RunStatus
	outcomes []model.URLOutcome
	final    model.RunStatus
	result   *model.RunResult
	fail     bool
}

func (r *fakeRecorder) CreateRun(_ context.Context, run model.Run) (*model.Run, error) {
	if r.fail {
		return nil, errors.New("ledger down")
	}
	r.runs = append(r.runs, run)
	return &run, nil
}

func (r *fakeRecorder) UpdateRunStatus(_ context.Context, _ string, status model.RunStatus) error {
	r.statuses = append(r.statuses, status)
	if r.fail {
		return errors.New("ledger down")
	}
	return nil
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, o model.URLOutcome) error {
	if r.fail {
		return errors.New("ledger down")
	}
	r.outcomes = append(r.outcomes, o)
	return nil
}

func (r *fakeRecorder) UpdateRunResult(_ context.Context, _ string, status model.RunStatus, result *model.RunResult) error {
	r.final = status
	r.result = result
	if r.fail {
		return errors.New("ledger down")
	}
	return nil
}

type fakeUsage struct{ phases []string }

func (u *fakeUsage) LogUsage(phase string) { u.phases = append(u.phases, phase) }

func items(pairs ...string) []map[string]any {
	var out []map[string]any
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, map[string]any{"title": pairs[i], "url": pairs[i+1], "snippet": "s-" + pairs[i]})
	}
	return out
}

type harness struct {
	source   *fakeSource
	table    *table.Table
	sleeps   *sleepRecorder
	recorder *fakeRecorder
	usage    *fakeUsage
	enriched []string
}

func newHarness(t *testing.T, source *fakeSource) *harness {
	t.Helper()
	return &harness{
		source:   source,
		table:    table.New(filepath.Join(t.TempDir(), "leads.csv")),
		sleeps:   &sleepRecorder{},
		recorder: &fakeRecorder{},
		usage:    &fakeUsage{},
	}
}

func (h *harness) pipeline(fn EnrichFunc, opts Options) *Pipeline {
	if opts.Candidate.Name == "" {
		opts.Candidate = schema.Candidates()
	}
	if opts.Enrichment.Name == "" {
		opts.Enrichment = schema.Profile()
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = 5
	}
	wrapped := func(ctx context.Context, url string) (map[string]string, error) {
		h.enriched = append(h.enriched, url)
		return fn(ctx, url)
	}
	return New(Deps{
		Source:     h.source,
		Table:      h.table,
		Enrich:     wrapped,
		Controller: newTestController(h.sleeps),
		Recorder:   h.recorder,
		Usage:      h.usage,
	}, opts)
}

func bioFor(bios map[string]string) EnrichFunc {
	return func(_ context.Context, url string) (map[string]string, error) {
		bio, ok := bios[url]
		if !ok {
			return nil, nil
		}
		return map[string]string{"profile_url": url, "bio": bio}, nil
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestRun_HarvestAndEnrich(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{
		1: {Number: 1, Items: items("A", "http://x/a", "B", "http://x/b")},
		2: {Number: 2, Items: items("B", "http://x/b-dup", "C", "http://x/c")},
	}}
	h := newHarness(t, src)

	res, err := h.pipeline(bioFor(map[string]string{"http://x/a": "hi", "http://x/c": "oi"}), Options{Query: "bolo"}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, src.calls)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 2, res.Enriched)
	assert.Equal(t, 1, res.NoRecord)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, []string{"http://x/a", "http://x/b", "http://x/c"}, h.enriched)

	rows, err := h.table.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Candidate columns survive enrichment.
	assert.Equal(t, "A", rows[0]["title"])
	assert.Equal(t, "s-A", rows[0]["snippet"])
	assert.Equal(t, "hi", rows[0]["bio"])
	assert.Equal(t, "http://x/a", rows[0]["profile_url"])
	assert.Equal(t, "", rows[1]["bio"])
	assert.Equal(t, "oi", rows[2]["bio"])

	// Politeness between URLs only.
	assert.Len(t, h.sleeps.waits, 2)

	require.Len(t, h.recorder.runs, 1)
	assert.Equal(t, "bolo", h.recorder.runs[0].Query)
	assert.Equal(t, "fake", h.recorder.runs[0].Source)
	assert.Equal(t, res.RunID, h.recorder.runs[0].ID)
	assert.Equal(t, []model.RunStatus{model.RunStatusHarvesting, model.RunStatusEnriching}, h.recorder.statuses)
	assert.Equal(t, model.RunStatusComplete, h.recorder.final)
	assert.Equal(t, 2, h.recorder.result.Enriched)
	require.Len(t, h.recorder.outcomes, 3)
	assert.Equal(t, model.OutcomeNoRecord, h.recorder.outcomes[1].State)
	assert.Equal(t, []string{"crawl"}, h.usage.phases)
}

func TestRun_DuplicateTitle(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{
		1: {Number: 1, Items: items("Same", "http://x/1", "Same", "http://x/2")},
	}}
	h := newHarness(t, src)

	res, err := h.pipeline(bioFor(nil), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)

	rows, err := h.table.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "http://x/1", rows[0]["url"])
}

func TestRun_ZeroCandidatesOnFirstPage(t *testing.T) {
	h := newHarness(t, &fakeSource{})

	res, err := h.pipeline(bioFor(nil), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Candidates)
	assert.Empty(t, h.enriched)

	assert.Equal(t, "title,url,snippet,profile_url,username,bio,followers,email,phone,location,category,website\n", readFile(t, h.table.Path()))
	assert.Equal(t, model.RunStatusComplete, h.recorder.final)
}

func TestRun_NoCompleteCandidatesEndsHarvest(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{
		1: {Number: 1, Items: []map[string]any{{"title": "no url"}}},
		2: {Number: 2, Items: items("A", "http://x/a")},
	}}
	h := newHarness(t, src)

	res, err := h.pipeline(bioFor(nil), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, src.calls)
	assert.Zero(t, res.Candidates)
	assert.FileExists(t, h.table.Path())
}

func TestRun_FetchErrorEndsHarvest(t *testing.T) {
	src := &fakeSource{
		pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a")}},
		errs:  map[int]error{2: errors.New("captcha")},
	}
	h := newHarness(t, src)

	res, err := h.pipeline(bioFor(map[string]string{"http://x/a": "hi"}), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, src.calls)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 1, res.Enriched)
}

func TestRun_FirstPageFetchErrorWritesNothing(t *testing.T) {
	h := newHarness(t, &fakeSource{errs: map[int]error{1: errors.New("dns")}})

	res, err := h.pipeline(bioFor(nil), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Candidates)
	_, statErr := os.Stat(h.table.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_MaxPages(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{
		1: {Number: 1, Items: items("A", "http://x/a")},
		2: {Number: 2, Items: items("B", "http://x/b")},
	}}
	h := newHarness(t, src)

	res, err := h.pipeline(bioFor(nil), Options{MaxPages: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1}, src.calls)
	assert.Equal(t, 1, res.Candidates)
}

func TestRun_RetryCeilingThenContinue(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{
		1: {Number: 1, Items: items("A", "http://x/a", "B", "http://x/b")},
	}}
	h := newHarness(t, src)
	attempts := map[string]int{}

	fn := func(_ context.Context, url string) (map[string]string, error) {
		attempts[url]++
		if url == "http://x/a" {
			return nil, errors.New("blocked")
		}
		return map[string]string{"bio": "ok"}, nil
	}
	res, err := h.pipeline(fn, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, attempts["http://x/a"])
	assert.Equal(t, 1, attempts["http://x/b"])
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Enriched)

	// Two cooldowns for a, then one politeness delay before b.
	require.Len(t, h.sleeps.waits, 3)
	assert.Equal(t, 60*time.Second, h.sleeps.waits[0])
	assert.Equal(t, 60*time.Second, h.sleeps.waits[1])

	require.Len(t, h.recorder.outcomes, 2)
	assert.Equal(t, model.OutcomeSkipped, h.recorder.outcomes[0].State)
	assert.Equal(t, 3, h.recorder.outcomes[0].Attempts)
	assert.Equal(t, "permanent", h.recorder.outcomes[0].ErrorType)

	rows, err := h.table.Rows()
	require.NoError(t, err)
	assert.Equal(t, "", rows[0]["bio"])
	assert.Equal(t, "ok", rows[1]["bio"])
}

func TestRun_MismatchedRecordLeavesRowBlank(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a")}}}
	h := newHarness(t, src)

	f := &stubFetcher{res: profilePage()}
	e := &stubExtractor{payload: extract.Text(`{"profile_url":"http://x/zzz","bio":"wrong"}`)}
	en := NewEnricher(f, e, schema.Profile(), scrape.RunConfig{}, "")

	res, err := h.pipeline(en.Enrich, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.NoRecord)

	rows, err := h.table.Rows()
	require.NoError(t, err)
	assert.Equal(t, "", rows[0]["bio"])
	assert.Equal(t, "", rows[0]["profile_url"])
}

func TestRun_StringListPayload(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a", "B", "http://x/b")}}}
	h := newHarness(t, src)

	e := &stubExtractor{payload: extract.Text(`[{"profile_url":"http://x/a","bio":"hi"}]`)}
	en := NewEnricher(&stubFetcher{res: profilePage()}, e, schema.Profile(), scrape.RunConfig{}, "")

	res, err := h.pipeline(en.Enrich, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enriched)
	assert.Equal(t, 1, res.NoRecord)

	rows, err := h.table.Rows()
	require.NoError(t, err)
	assert.Equal(t, "hi", rows[0]["bio"])
	assert.Equal(t, "A", rows[0]["title"])
	assert.Equal(t, "", rows[1]["bio"])
}

func TestRun_UpdatesLimitedToEnrichmentColumns(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a")}}}
	h := newHarness(t, src)

	custom := schema.Schema{Name: "custom", Fields: []schema.Field{
		{Name: schema.IdentifierField, Required: true, Kind: schema.KindURL},
		{Name: "title", Kind: schema.KindString},
		{Name: "notes", Kind: schema.KindString},
	}}
	fn := func(_ context.Context, url string) (map[string]string, error) {
		return map[string]string{"profile_url": url, "title": "overwritten", "notes": "n"}, nil
	}
	_, err := h.pipeline(fn, Options{Enrichment: custom}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"title", "url", "snippet", "profile_url", "notes"}, h.table.Columns())
	rows, err := h.table.Rows()
	require.NoError(t, err)
	assert.Equal(t, "A", rows[0]["title"])
	assert.Equal(t, "n", rows[0]["notes"])
}

func TestRun_StoreWriteFailureIsFatal(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a", "B", "http://x/b")}}}
	h := newHarness(t, src)

	fn := func(_ context.Context, url string) (map[string]string, error) {
		// Replace the table file with a directory so the rewrite fails.
		require.NoError(t, os.Remove(h.table.Path()))
		require.NoError(t, os.Mkdir(h.table.Path(), 0o755))
		return map[string]string{"bio": "hi"}, nil
	}
	_, err := h.pipeline(fn, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist enrichment")
	assert.Equal(t, []string{"http://x/a"}, h.enriched)
	assert.Equal(t, model.RunStatusFailed, h.recorder.final)
	assert.NotEmpty(t, h.recorder.result.Error)
}

func TestRun_Cancel(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a", "B", "http://x/b")}}}
	h := newHarness(t, src)
	ctx, cancel := context.WithCancel(context.Background())

	fn := func(ctx context.Context, url string) (map[string]string, error) {
		cancel()
		return nil, ctx.Err()
	}
	_, err := h.pipeline(fn, Options{}).Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"http://x/a"}, h.enriched)
	assert.Equal(t, model.RunStatusCanceled, h.recorder.final)
}

func TestRun_Resume(t *testing.T) {
	h := newHarness(t, nil)
	columns, _ := Columns(schema.Candidates(), schema.Profile())
	require.NoError(t, h.table.Initialize(columns))
	require.NoError(t, h.table.AppendAll([]table.Row{
		{"title": "A", "url": "http://x/a", "bio": "done"},
		{"title": "B", "url": "http://x/b"},
		{"title": "C", "url": "http://x/c"},
	}))

	p := New(Deps{
		Table:      table.New(h.table.Path()),
		Enrich:     bioFor(map[string]string{"http://x/b": "new", "http://x/a": "redo"}),
		Controller: newTestController(h.sleeps),
		Recorder:   h.recorder,
	}, Options{Resume: true, Candidate: schema.Candidates(), Enrichment: schema.Profile()})

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 1, res.Enriched)
	assert.Equal(t, 1, res.NoRecord)

	rows, err := h.table.Rows()
	require.NoError(t, err)
	assert.Equal(t, "done", rows[0]["bio"])
	assert.Equal(t, "new", rows[1]["bio"])
	assert.True(t, h.recorder.runs[0].Resumed)
	assert.Equal(t, "", h.recorder.runs[0].Source)
}

func TestRun_ResumeMissingTable(t *testing.T) {
	h := newHarness(t, nil)
	p := New(Deps{Table: h.table, Enrich: bioFor(nil), Controller: newTestController(h.sleeps)},
		Options{Resume: true, Candidate: schema.Candidates(), Enrichment: schema.Profile()})

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume")
}

func TestRun_LedgerFailuresAreNotFatal(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a")}}}
	h := newHarness(t, src)
	h.recorder.fail = true

	res, err := h.pipeline(bioFor(map[string]string{"http://x/a": "hi"}), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enriched)
	assert.NotEmpty(t, res.RunID)
}

func TestRun_WithoutRecorder(t *testing.T) {
	src := &fakeSource{pages: map[int]*search.Page{1: {Number: 1, Items: items("A", "http://x/a")}}}
	h := newHarness(t, src)

	p := New(Deps{Source: src, Table: h.table, Enrich: bioFor(nil), Controller: newTestController(h.sleeps)},
		Options{Candidate: schema.Candidates(), Enrichment: schema.Profile()})
	res, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.NoRecord)
}

func TestRun_IdempotentRerun(t *testing.T) {
	page := &search.Page{Number: 1, Items: items("A", "http://x/a")}
	fn := bioFor(map[string]string{"http://x/a": "hi"})

	h := newHarness(t, &fakeSource{pages: map[int]*search.Page{1: page}})
	_, err := h.pipeline(fn, Options{}).Run(context.Background())
	require.NoError(t, err)
	first := readFile(t, h.table.Path())

	h.source = &fakeSource{pages: map[int]*search.Page{1: page}}
	_, err = h.pipeline(fn, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, readFile(t, h.table.Path()))
}

func TestColumns(t *testing.T) {
	cols, enrich := Columns(schema.Candidates(), schema.Website())
	assert.Equal(t, []string{"title", "url", "snippet", "profile_url", "emails", "contact_links", "summary", "phone"}, cols)
	assert.True(t, enrich["emails"])
	assert.False(t, enrich["title"])
}
