package model

// FetchResult is the outcome of fetching and rendering one page.
type FetchResult struct {
	URL              string `json:"url"`
	Success          bool   `json:"success"`
	Title            string `json:"title,omitempty"`
	ExtractedContent string `json:"extracted_content,omitempty"` // selector-narrowed content
	HTML             string `json:"html,omitempty"`
	Markdown         string `json:"markdown,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
	StatusCode       int    `json:"status_code"`
	Source           string `json:"source"` // "local", "jina", "firecrawl" or "cache"
}

// Content returns the best available text for extraction: the
// selector-narrowed content when present, else markdown, else HTML.
func (r *FetchResult) Content() string {
	if r == nil {
		return ""
	}
	switch {
	case r.ExtractedContent != "":
		return r.ExtractedContent
	case r.Markdown != "":
		return r.Markdown
	default:
		return r.HTML
	}
}
