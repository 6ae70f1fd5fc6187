package crawler

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Section is one structural region of a page, summarized for scoring.
type Section struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Headers   []string `json:"headers,omitempty"`
	Preview   string   `json:"preview"`
	WordCount int      `json:"word_count"`
}

const (
	maxSections        = 8
	minSemanticChars   = 50
	minFallbackChars   = 100
	sectionPreviewLen  = 400
	maxSectionHeaders  = 3
	maxContextChars    = 200
	maxLinksPerPage    = 30
)

// SplitSections segments a page into scoreable regions. Semantic HTML5
// containers win; pages without them fall back to substantial divs, and an
// unstructured page collapses to a single whole-page section built from
// text. Noise elements (script, style, nav, header, footer) are stripped
// before segmentation.
func SplitSections(html, text string) []Section {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fallbackSection(text)
	}
	doc.Find("script, style, nav, header, footer").Remove()

	sections := semanticSections(doc)
	if len(sections) < 2 {
		sections = divSections(doc)
	}
	if len(sections) == 0 {
		return fallbackSection(firstNonEmpty(text, squashSpace(doc.Text())))
	}
	if len(sections) > maxSections {
		sections = sections[:maxSections]
	}
	return sections
}

func semanticSections(doc *goquery.Document) []Section {
	var sections []Section
	doc.Find("section, article, main").Each(func(_ int, sel *goquery.Selection) {
		if len(sections) >= maxSections {
			return
		}
		text := squashSpace(sel.Text())
		if len(text) < minSemanticChars {
			return
		}
		name := sel.AttrOr("id", sel.AttrOr("class", ""))
		if name == "" {
			name = fmt.Sprintf("section_%d", len(sections))
		}
		sections = append(sections, buildSection(len(sections), name, text, sel))
	})
	return sections
}

func divSections(doc *goquery.Document) []Section {
	var sections []Section
	doc.Find("div[class]").Each(func(_ int, sel *goquery.Selection) {
		if len(sections) >= maxSections {
			return
		}
		// Nested divs repeat their parent's text; keep outermost ones only.
		if sel.ParentsFiltered("div[class]").Length() > 0 {
			return
		}
		text := squashSpace(sel.Text())
		if len(text) < minFallbackChars {
			return
		}
		name := sel.AttrOr("class", "")
		if name == "" {
			name = fmt.Sprintf("content_block_%d", len(sections))
		}
		sections = append(sections, buildSection(len(sections), name, text, sel))
	})
	return sections
}

func buildSection(id int, name, text string, sel *goquery.Selection) Section {
	var headers []string
	sel.Find("h1, h2, h3, h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		ht := squashSpace(h.Text())
		if ht != "" {
			headers = append(headers, ht)
		}
		return len(headers) < maxSectionHeaders
	})
	return Section{
		ID:        id,
		Name:      truncate(name, 50),
		Headers:   headers,
		Preview:   truncate(text, sectionPreviewLen),
		WordCount: len(strings.Fields(text)),
	}
}

func fallbackSection(text string) []Section {
	text = squashSpace(text)
	if text == "" {
		return nil
	}
	return []Section{{
		ID:        0,
		Name:      "page",
		Preview:   truncate(text, sectionPreviewLen),
		WordCount: len(strings.Fields(text)),
	}}
}

// ExtractLinks walks every anchor on the page, canonicalizes the target,
// and captures the DOM signals the heuristic scorer feeds on. Anchors with
// empty or single-character text are skipped; at most maxLinksPerPage
// candidates are returned, in document order.
func ExtractLinks(html, baseURL string, canon *Canonicalizer) []LinkCandidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var candidates []LinkCandidate
	seen := make(map[string]struct{})
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		canonical, ok := canon.Canonicalize(href, baseURL)
		if !ok {
			return true
		}
		if canonical == baseURL {
			return true
		}
		if _, dup := seen[canonical]; dup {
			return true
		}
		anchor := squashSpace(sel.Text())
		if len(anchor) < 2 {
			return true
		}

		context := ""
		if parent := sel.Parent(); parent.Length() > 0 {
			context = truncate(squashSpace(parent.Text()), maxContextChars)
		}
		seen[canonical] = struct{}{}
		candidates = append(candidates, LinkCandidate{
			URL:        canonical,
			AnchorText: anchor,
			Context:    context,
			InHeader:   sel.ParentsFiltered("header, nav, h1, h2, h3").Length() > 0,
			InMain:     sel.ParentsFiltered("main, article").Length() > 0,
			Pattern:    GeneralizePattern(canonical),
		})
		return len(candidates) < maxLinksPerPage
	})
	return candidates
}

func squashSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
