package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/nao1215/markdown"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

const (
	maxReportPages    = 25
	maxReportPatterns = 15
	maxExtractChars   = 300
)

// MarkdownWriter outputs crawl results in Markdown format, designed for
// human review and sharing.
type MarkdownWriter struct {
	baseWriter
	thresholds crawler.Thresholds
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given
// writer.
func NewMarkdownWriter(output io.Writer, thresholds crawler.Thresholds) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		thresholds: thresholds,
	}
}

// Write outputs the full result in Markdown format.
func (w *MarkdownWriter) Write(result crawler.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeAnswer(md, result)
	w.writePages(md, result)
	w.writeKnowledge(md, result)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result crawler.Result) {
	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Objective", result.Objective},
			{"Start URL", "`" + result.StartURL + "`"},
			{"Session", "`" + result.SessionID + "`"},
			{"Started", result.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages Crawled", strconv.Itoa(len(result.Pages))},
			{"High-Value Pages", strconv.Itoa(result.HighValueCount(w.thresholds.HighValue))},
			{"Average Relevance", fmt.Sprintf("%.1f/10", result.AverageRelevance())},
		},
	})
	md.PlainText("")

	switch {
	case len(result.Pages) == 0:
		md.Warning("No pages were crawled. Check the start URL and fetch logs.")
	case result.HighValueCount(w.thresholds.HighValue) == 0:
		md.Note("No high-value pages found. Consider a stricter objective or a different entry point.")
	default:
		md.Tipf("%d page(s) directly serve the objective.", result.HighValueCount(w.thresholds.HighValue))
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeAnswer(md *markdown.Markdown, result crawler.Result) {
	if result.Answer == "" {
		return
	}
	md.H2("Answer")
	md.PlainText("")
	md.PlainText(result.Answer)
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, result crawler.Result) {
	md.H2("Relevant Pages")
	md.PlainText("")

	pages := make([]crawler.PageRecord, 0, len(result.Pages))
	for _, p := range result.Pages {
		if p.RelevanceScore >= w.thresholds.Extractable {
			pages = append(pages, p)
		}
	}
	if len(pages) == 0 {
		md.PlainText("No pages cleared the extraction threshold.")
		md.PlainText("")
		return
	}
	sort.SliceStable(pages, func(i, j int) bool {
		return pages[i].RelevanceScore > pages[j].RelevanceScore
	})
	if len(pages) > maxReportPages {
		pages = pages[:maxReportPages]
	}

	rows := make([][]string, len(pages))
	for i, p := range pages {
		title := p.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			truncateString(title, 40),
			truncateString(p.URL, 60),
			p.PageType,
			strconv.Itoa(p.RelevanceScore) + "/10",
			string(p.Phase),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Title", "URL", "Type", "Relevance", "Phase"},
		Rows:   rows,
	})
	md.PlainText("")

	for _, p := range pages {
		for _, s := range p.Sections {
			if len(s.Extracted) == 0 {
				continue
			}
			md.Details(
				fmt.Sprintf("%s (%d/10) on %s", s.Name, s.RelevanceScore, p.URL),
				"`"+truncateString(string(s.Extracted), maxExtractChars)+"`",
			)
		}
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeKnowledge(md *markdown.Markdown, result crawler.Result) {
	md.H2("Site Knowledge")
	md.PlainText("")

	if len(result.Knowledge.Patterns) == 0 {
		md.PlainText("No URL patterns were learned.")
		md.PlainText("")
		return
	}

	patterns := result.Knowledge.Patterns
	if len(patterns) > maxReportPatterns {
		patterns = patterns[:maxReportPatterns]
	}
	rows := make([][]string, len(patterns))
	for i, p := range patterns {
		rows[i] = []string{
			"`" + truncateString(p.Pattern, 60) + "`",
			strconv.Itoa(p.Visits),
			fmt.Sprintf("%.1f", p.Average),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL Pattern", "Visits", "Avg Relevance"},
		Rows:   rows,
	})
	md.PlainText("")
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
