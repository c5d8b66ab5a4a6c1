// Package store persists the run ledger and the page fetch cache.
package store

import (
	"context"
	"time"

	"github.com/sells-group/prospector-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for crawl runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run model.Run) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Per-URL enrichment outcomes
	RecordOutcome(ctx context.Context, outcome model.URLOutcome) error
	ListOutcomes(ctx context.Context, runID string) ([]model.URLOutcome, error)

	// Fetch cache
	GetCachedFetch(ctx context.Context, url string) (*model.FetchResult, error)
	SetCachedFetch(ctx context.Context, url string, res *model.FetchResult, ttl time.Duration) error
	DeleteExpiredFetches(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
