// Package search implements the paginated result sources harvested for
// candidate profile links.
package search

import (
	"context"
	"strings"
)

// Page is one page of raw harvest results. Items are unvalidated
// candidate mappings with title, url and snippet keys.
type Page struct {
	Number int
	Items  []map[string]any
	// NoResults is the source's explicit end-of-results signal.
	NoResults bool
}

// Source produces harvest pages. Pages are requested in order starting
// at 1.
type Source interface {
	Name() string
	FetchPage(ctx context.Context, page int) (*Page, error)
}

func candidate(title, url, snippet string) map[string]any {
	m := map[string]any{
		"title": strings.TrimSpace(title),
		"url":   strings.TrimSpace(url),
	}
	if s := strings.TrimSpace(snippet); s != "" {
		m["snippet"] = s
	}
	return m
}
