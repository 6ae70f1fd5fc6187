// Package report renders completed crawl results as JSON or Markdown.
package report

import (
	"io"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
)

// Writer outputs a crawl result in one format. Implementations write to the
// destination they were constructed with, so the same result can go to a
// file, stdout, or both.
type Writer interface {
	// Write outputs the result. It returns the number of bytes written
	// and any error encountered.
	Write(result crawler.Result) (int, error)
}

// MultiWriter writes a result to multiple Writers, stopping on the first
// error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all configured Writers. It returns the total
// bytes written across all writers.
func (m *MultiWriter) Write(result crawler.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
