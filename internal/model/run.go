package model

import "time"

// RunStatus represents the current state of a crawl run.
type RunStatus string

const (
	RunStatusHarvesting RunStatus = "harvesting"
	RunStatusEnriching  RunStatus = "enriching"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCanceled   RunStatus = "canceled"
)

// Run represents a single crawl run recorded in the ledger.
type Run struct {
	ID         string     `json:"id"`
	Query      string     `json:"query"`
	Source     string     `json:"source"`
	OutputPath string     `json:"output_path"`
	Resumed    bool       `json:"resumed"`
	Status     RunStatus  `json:"status"`
	Result     *RunResult `json:"result,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RunResult holds the final tallies of a run.
type RunResult struct {
	Candidates int    `json:"candidates"`
	Enriched   int    `json:"enriched"`
	Skipped    int    `json:"skipped"`
	NoRecord   int    `json:"no_record"`
	Error      string `json:"error,omitempty"`
}

// OutcomeState is the terminal state of one enrichment attempt sequence.
type OutcomeState string

const (
	OutcomeSuccess  OutcomeState = "success"
	OutcomeNoRecord OutcomeState = "no_record"
	OutcomeSkipped  OutcomeState = "skipped"
)

// URLOutcome records how enrichment ended for a single candidate URL.
type URLOutcome struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	URL       string       `json:"url"`
	State     OutcomeState `json:"state"`
	Attempts  int          `json:"attempts"`
	Error     string       `json:"error,omitempty"`
	ErrorType string       `json:"error_type,omitempty"` // "transient" or "permanent"
	CreatedAt time.Time    `json:"created_at"`
}
