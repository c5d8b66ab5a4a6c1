// Package pipeline runs the two-phase lead crawl: harvest candidates from a
// paginated source into the table, then enrich each candidate in place.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector-cli/internal/model"
	"github.com/sells-group/prospector-cli/internal/resilience"
	"github.com/sells-group/prospector-cli/internal/schema"
	"github.com/sells-group/prospector-cli/internal/search"
	"github.com/sells-group/prospector-cli/internal/table"
)

const (
	// KeyField deduplicates candidates during harvest.
	KeyField = "title"
	// MergeField locates a candidate's row during enrichment.
	MergeField = "url"
)

// Recorder receives the run ledger. Failures are logged and never stop a
// run.
type Recorder interface {
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	RecordOutcome(ctx context.Context, outcome model.URLOutcome) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
}

// UsageReporter logs accumulated extraction usage.
type UsageReporter interface {
	LogUsage(phase string)
}

// Deps are the collaborators of a Pipeline. Recorder and Usage are
// optional.
type Deps struct {
	Source     search.Source
	Table      *table.Table
	Enrich     EnrichFunc
	Controller *Controller
	Recorder   Recorder
	Usage      UsageReporter
}

// Options tunes a run.
type Options struct {
	// MaxPages bounds the harvest. Values below 1 mean one page.
	MaxPages int
	// PageInterval is the minimum time between harvest page fetches.
	PageInterval time.Duration
	// Resume skips the harvest and enriches rows of the existing table
	// whose enrichment columns are all empty.
	Resume bool
	// Candidate and Enrichment are the record shapes. Their field names,
	// in that order and deduplicated, form the table columns.
	Candidate  schema.Schema
	Enrichment schema.Schema
	// Query is recorded in the ledger.
	Query string
}

// Result tallies a completed run.
type Result struct {
	RunID      string
	Candidates int
	Enriched   int
	Skipped    int
	NoRecord   int
}

// Pipeline orchestrates harvest and enrichment.
type Pipeline struct {
	deps    Deps
	opts    Options
	limiter *rate.Limiter
	columns []string
	// enrichCols are the columns enrichment may write.
	enrichCols map[string]bool
}

// New creates a Pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.MaxPages < 1 {
		opts.MaxPages = 1
	}

	limit := rate.Inf
	if opts.PageInterval > 0 {
		limit = rate.Every(opts.PageInterval)
	}

	columns, enrichCols := Columns(opts.Candidate, opts.Enrichment)
	return &Pipeline{
		deps:       deps,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		columns:    columns,
		enrichCols: enrichCols,
	}
}

// Columns returns the table column order for the two shapes and the set of
// columns owned by enrichment. A field declared by both shapes belongs to
// the candidate.
func Columns(candidate, enrichment schema.Schema) ([]string, map[string]bool) {
	seen := make(map[string]bool)
	var columns []string
	for _, name := range candidate.Names() {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
		}
	}
	enrichCols := make(map[string]bool)
	for _, name := range enrichment.Names() {
		if !seen[name] {
			seen[name] = true
			columns = append(columns, name)
			enrichCols[name] = true
		}
	}
	return columns, enrichCols
}

// Run executes the pipeline until done, cancellation or a store failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{}
	res.RunID = p.startRun(ctx)

	err := p.run(ctx, res)

	status := model.RunStatusComplete
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		status = model.RunStatusCanceled
	default:
		status = model.RunStatusFailed
	}
	p.finishRun(ctx, res, status, err)

	if p.deps.Usage != nil {
		p.deps.Usage.LogUsage("crawl")
	}

	zap.L().Info("pipeline: done",
		zap.String("run_id", res.RunID),
		zap.String("status", string(status)),
		zap.Int("candidates", res.Candidates),
		zap.Int("enriched", res.Enriched),
		zap.Int("skipped", res.Skipped),
		zap.Int("no_record", res.NoRecord),
	)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result) error {
	var urls []string
	if p.opts.Resume {
		pending, total, err := p.resume()
		if err != nil {
			return err
		}
		res.Candidates = total
		urls = pending
	} else {
		p.setStatus(ctx, res.RunID, model.RunStatusHarvesting)
		state, err := p.harvest(ctx)
		if err != nil {
			return err
		}
		res.Candidates = len(state.Candidates)
		for _, c := range state.Candidates {
			urls = append(urls, c[MergeField])
		}
	}

	if len(urls) == 0 {
		zap.L().Info("pipeline: nothing to enrich")
		return nil
	}

	p.setStatus(ctx, res.RunID, model.RunStatusEnriching)
	return p.enrich(ctx, res, urls)
}

// harvest walks result pages until the source is exhausted, a page fails,
// a page yields no new candidates, or MaxPages is reached. The table is
// initialized once the first page returns and rewritten after every page.
func (p *Pipeline) harvest(ctx context.Context) (*HarvestState, error) {
	state := NewHarvestState()
	initialized := false

	for n := 1; n <= p.opts.MaxPages; n++ {
		log := zap.L().With(zap.Int("page", n), zap.String("source", p.deps.Source.Name()))

		if err := p.limiter.Wait(ctx); err != nil {
			return state, eris.Wrap(err, "pipeline: harvest wait")
		}

		page, err := p.deps.Source.FetchPage(ctx, n)
		if err != nil {
			if ctx.Err() != nil {
				return state, eris.Wrap(ctx.Err(), "pipeline: harvest canceled")
			}
			log.Warn("pipeline: harvest page failed, no more pages", zap.Error(err))
			break
		}

		if !initialized {
			if err := p.deps.Table.Initialize(p.columns); err != nil {
				return state, eris.Wrap(err, "pipeline: initialize table")
			}
			initialized = true
		}

		if page.NoResults {
			log.Info("pipeline: no more results")
			break
		}

		accepted := state.Add(page.Items, p.opts.Candidate, KeyField)
		if len(accepted) == 0 {
			log.Info("pipeline: no new candidates on page, ending harvest", zap.Int("items", len(page.Items)))
			break
		}

		if err := p.deps.Table.AppendAll(toRows(state.Candidates)); err != nil {
			return state, eris.Wrap(err, "pipeline: persist candidates")
		}
		log.Info("pipeline: harvested page",
			zap.Int("accepted", len(accepted)),
			zap.Int("total", len(state.Candidates)),
		)
	}

	return state, nil
}

// resume attaches the existing table and returns the URLs of rows with no
// enrichment data, along with the total row count.
func (p *Pipeline) resume() ([]string, int, error) {
	rows, err := p.deps.Table.Attach(p.columns)
	if err != nil {
		return nil, 0, eris.Wrap(err, "pipeline: resume")
	}

	var pending []string
	for _, row := range rows {
		if p.enriched(row) || row[MergeField] == "" {
			continue
		}
		pending = append(pending, row[MergeField])
	}
	zap.L().Info("pipeline: resuming",
		zap.Int("rows", len(rows)),
		zap.Int("pending", len(pending)),
	)
	return pending, len(rows), nil
}

func (p *Pipeline) enriched(row table.Row) bool {
	for col := range p.enrichCols {
		if row[col] != "" {
			return true
		}
	}
	return false
}

// enrich visits each URL in order. Only a table write failure or
// cancellation ends the loop early.
func (p *Pipeline) enrich(ctx context.Context, res *Result, urls []string) error {
	for i, url := range urls {
		if err := p.deps.Controller.Pace(ctx); err != nil {
			return eris.Wrap(err, "pipeline: enrichment canceled")
		}

		log := zap.L().With(zap.String("url", url), zap.Int("index", i+1), zap.Int("total", len(urls)))
		out := p.deps.Controller.Run(ctx, url, p.deps.Enrich)
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "pipeline: enrichment canceled")
		}

		state := model.OutcomeSuccess
		switch {
		case out.State == StateSkipped:
			state = model.OutcomeSkipped
			res.Skipped++
		case len(out.Updates) == 0:
			state = model.OutcomeNoRecord
			res.NoRecord++
			log.Info("pipeline: no record extracted")
		default:
			updates := p.enrichmentOnly(out.Updates)
			ok, err := p.deps.Table.Upsert(MergeField, url, updates)
			if err != nil {
				return eris.Wrapf(err, "pipeline: persist enrichment for %s", url)
			}
			if ok {
				res.Enriched++
				log.Info("pipeline: enriched", zap.Int("fields", len(updates)))
			} else {
				state = model.OutcomeNoRecord
				res.NoRecord++
			}
		}
		p.recordOutcome(ctx, res.RunID, url, state, out)
	}
	return nil
}

func (p *Pipeline) enrichmentOnly(updates map[string]string) map[string]string {
	out := make(map[string]string, len(updates))
	for k, v := range updates {
		if p.enrichCols[k] {
			out[k] = v
		}
	}
	return out
}

func toRows(records []schema.Record) []table.Row {
	rows := make([]table.Row, len(records))
	for i, r := range records {
		rows[i] = table.Row(r)
	}
	return rows
}

// Ledger helpers. A nil Recorder disables the ledger.

func (p *Pipeline) startRun(ctx context.Context) string {
	id := uuid.New().String()
	if p.deps.Recorder == nil {
		return id
	}
	source := ""
	if p.deps.Source != nil {
		source = p.deps.Source.Name()
	}
	status := model.RunStatusHarvesting
	if p.opts.Resume {
		status = model.RunStatusEnriching
	}
	run, err := p.deps.Recorder.CreateRun(ctx, model.Run{
		ID:         id,
		Query:      p.opts.Query,
		Source:     source,
		OutputPath: p.deps.Table.Path(),
		Resumed:    p.opts.Resume,
		Status:     status,
	})
	if err != nil {
		zap.L().Warn("pipeline: ledger create run failed", zap.Error(err))
		return id
	}
	return run.ID
}

func (p *Pipeline) setStatus(ctx context.Context, runID string, status model.RunStatus) {
	if p.deps.Recorder == nil {
		return
	}
	if err := p.deps.Recorder.UpdateRunStatus(ctx, runID, status); err != nil {
		zap.L().Warn("pipeline: ledger update status failed", zap.String("status", string(status)), zap.Error(err))
	}
}

func (p *Pipeline) recordOutcome(ctx context.Context, runID, url string, state model.OutcomeState, out Outcome) {
	if p.deps.Recorder == nil {
		return
	}
	o := model.URLOutcome{
		ID:       uuid.New().String(),
		RunID:    runID,
		URL:      url,
		State:    state,
		Attempts: out.Attempts,
	}
	if out.Err != nil {
		o.Error = out.Err.Error()
		o.ErrorType = resilience.ClassifyError(out.Err)
	}
	if err := p.deps.Recorder.RecordOutcome(ctx, o); err != nil {
		zap.L().Warn("pipeline: ledger record outcome failed", zap.String("url", url), zap.Error(err))
	}
}

func (p *Pipeline) finishRun(ctx context.Context, res *Result, status model.RunStatus, runErr error) {
	if p.deps.Recorder == nil {
		return
	}
	result := &model.RunResult{
		Candidates: res.Candidates,
		Enriched:   res.Enriched,
		Skipped:    res.Skipped,
		NoRecord:   res.NoRecord,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	// The run context may already be canceled.
	ctx = context.WithoutCancel(ctx)
	if err := p.deps.Recorder.UpdateRunResult(ctx, res.RunID, status, result); err != nil {
		zap.L().Warn("pipeline: ledger update result failed", zap.Error(err))
	}
}
