// Package fetcher provides page retrieval with optional escalation from
// plain HTTP to a headless browser for script-dependent pages.
package fetcher

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// BuildResult turns a raw HTML body into a FetchResult: title and meta
// description come from the document head, the plain-text rendering from
// readability extraction with a whole-document fallback.
func BuildResult(pageURL string, statusCode int, html string, rendered bool) crawler.FetchResult {
	result := crawler.FetchResult{
		URL:        pageURL,
		StatusCode: statusCode,
		HTML:       html,
		Rendered:   rendered,
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return result
	}
	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		result.Description = strings.TrimSpace(desc)
	}
	result.Text = extractText(pageURL, html, doc)
	return result
}

func extractText(pageURL, html string, doc *goquery.Document) string {
	if u, err := url.Parse(pageURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(html), u); err == nil {
			if text := strings.TrimSpace(article.TextContent); text != "" {
				return text
			}
		}
	}
	// Readability rejects index-like pages; fall back to stripped body text.
	doc.Find("script, style, noscript").Remove()
	return strings.Join(strings.Fields(doc.Find("body").Text()), " ")
}
