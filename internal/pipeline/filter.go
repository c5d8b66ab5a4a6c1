package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/prospector-cli/internal/schema"
)

// Filter keeps the raw candidates that validate against sch and whose
// keyField value is not yet in seen. Accepted keys are added to seen, so
// the first occurrence wins both within raw and across calls.
func Filter(raw []map[string]any, sch schema.Schema, keyField string, seen map[string]struct{}) []schema.Record {
	out := make([]schema.Record, 0, len(raw))
	for _, m := range raw {
		rec, err := sch.Validate(m)
		if err != nil {
			zap.L().Info("pipeline: dropping incomplete candidate", zap.Error(err))
			continue
		}
		key := rec[keyField]
		if _, dup := seen[key]; dup {
			zap.L().Info("pipeline: duplicate candidate, skipping", zap.String(keyField, key))
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// HarvestState accumulates candidates across harvest pages.
type HarvestState struct {
	Seen       map[string]struct{}
	Candidates []schema.Record
}

// NewHarvestState returns an empty HarvestState.
func NewHarvestState() *HarvestState {
	return &HarvestState{Seen: make(map[string]struct{})}
}

// Add filters a page of raw candidates into the state and returns the
// accepted records.
func (h *HarvestState) Add(raw []map[string]any, sch schema.Schema, keyField string) []schema.Record {
	accepted := Filter(raw, sch, keyField, h.Seen)
	h.Candidates = append(h.Candidates, accepted...)
	return accepted
}
