package extract

import (
	"context"

	"github.com/sells-group/prospector-cli/internal/schema"
)

// Request asks an extractor for records of Schema found in Content.
type Request struct {
	URL         string
	Content     string
	Schema      schema.Schema
	Instruction string
}

// Extractor turns page content into a raw extraction payload.
type Extractor interface {
	Extract(ctx context.Context, req Request) (Payload, error)
}
