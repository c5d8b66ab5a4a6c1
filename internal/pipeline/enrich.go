package pipeline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospector-cli/internal/extract"
	"github.com/sells-group/prospector-cli/internal/schema"
	"github.com/sells-group/prospector-cli/internal/scrape"
)

// Enricher fetches a candidate page and extracts one enrichment record.
type Enricher struct {
	fetcher     scrape.Fetcher
	extractor   extract.Extractor
	normalizer  *extract.Normalizer
	schema      schema.Schema
	run         scrape.RunConfig
	instruction string
}

// NewEnricher creates an Enricher for records of sch.
func NewEnricher(fetcher scrape.Fetcher, extractor extract.Extractor, sch schema.Schema, run scrape.RunConfig, instruction string) *Enricher {
	return &Enricher{
		fetcher:     fetcher,
		extractor:   extractor,
		normalizer:  extract.NewNormalizer(sch),
		schema:      sch,
		run:         run,
		instruction: instruction,
	}
}

// Enrich returns the updates for url. Fetch and extraction failures are
// errors; a payload that resolves to no record is an empty result.
func (e *Enricher) Enrich(ctx context.Context, url string) (map[string]string, error) {
	res, err := e.fetcher.Fetch(ctx, url, e.run)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: fetch %s", url)
	}

	payload, err := e.extractor.Extract(ctx, extract.Request{
		URL:         url,
		Content:     scrape.ExtractionContent(res),
		Schema:      e.schema,
		Instruction: e.instruction,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: extract %s", url)
	}

	rec, ok := e.normalizer.Normalize(url, payload)
	if !ok {
		return nil, nil
	}
	return map[string]string(rec), nil
}
