package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/sells-group/prospector-cli/internal/model"
)

// keptAttrs are the only attributes preserved by CleanProfileHTML.
var keptAttrs = map[string]bool{"content": true, "property": true, "name": true}

// CleanProfileHTML reduces a profile page to the parts that carry profile
// data: <meta> tags, JSON-LD scripts and <main>/<article> content, with all
// attributes except content, property and name removed. It returns "" when
// nothing of interest is found.
func CleanProfileHTML(raw string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}

	var parts []string
	keep := func(_ int, s *goquery.Selection) {
		c := s.Clone()
		c.Find("script:not([type='application/ld+json']), style, svg, noscript").Remove()
		stripAttrs(c)
		if h, err := goquery.OuterHtml(c); err == nil && strings.TrimSpace(h) != "" {
			parts = append(parts, h)
		}
	}

	doc.Find("meta").Each(func(i int, s *goquery.Selection) {
		if _, ok := s.Attr("content"); ok {
			keep(i, s)
		}
	})
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			parts = append(parts, `<script type="application/ld+json">`+text+`</script>`)
		}
	})
	// Nested main/article are covered by their outermost ancestor.
	doc.Find("main, article").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("main, article").Length() == 0
	}).Each(keep)

	return strings.Join(parts, "\n")
}

func stripAttrs(s *goquery.Selection) {
	s.Find("*").AddSelection(s).Each(func(_ int, el *goquery.Selection) {
		for _, n := range el.Nodes {
			if n.Type != html.ElementNode {
				continue
			}
			kept := n.Attr[:0]
			for _, a := range n.Attr {
				if keptAttrs[a.Key] {
					kept = append(kept, a)
				}
			}
			n.Attr = kept
		}
	})
}

// ExtractionContent picks the text handed to the extractor: selector
// output first, then cleaned profile HTML, then markdown.
func ExtractionContent(r *model.FetchResult) string {
	if r == nil {
		return ""
	}
	if r.ExtractedContent != "" {
		return r.ExtractedContent
	}
	if r.HTML != "" {
		cleaned := CleanProfileHTML(r.HTML)
		if r.Markdown != "" {
			if cleaned == "" {
				return r.Markdown
			}
			return cleaned + "\n\n" + r.Markdown
		}
		if cleaned != "" {
			return cleaned
		}
	}
	return r.Content()
}
