// Package ollama implements the inference oracle against a local or remote
// Ollama server's generate endpoint.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siftcrawl/siftcrawl/internal/crawler"
	"github.com/siftcrawl/siftcrawl/internal/metrics"
)

const defaultTimeout = 120 * time.Second

// Client calls POST {base}/api/generate with streaming disabled. Responses
// are validated as JSON before reaching callers; models that wrap output in
// markdown fences get unwrapped first.
type Client struct {
	baseURL string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// Option mutates a Client during construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// New builds a Client for the given server and model.
func New(baseURL, model string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Infer runs one generation and tags the outcome. Connectivity and HTTP
// failures become the transport arm; a reply that is not valid JSON after
// fence stripping becomes the malformed arm with the raw text preserved.
func (c *Client) Infer(ctx context.Context, prompt string) crawler.OracleResult {
	start := time.Now()
	result := c.infer(ctx, prompt)
	metrics.ObserveOracleCall("generate", outcomeName(result), time.Since(start))
	return result
}

func (c *Client) infer(ctx context.Context, prompt string) crawler.OracleResult {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt, Stream: false})
	if err != nil {
		return crawler.TransportError(fmt.Errorf("encoding generate request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return crawler.TransportError(fmt.Errorf("building generate request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return crawler.TransportError(fmt.Errorf("calling %s: %w", c.baseURL, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return crawler.TransportError(fmt.Errorf("reading generate response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return crawler.TransportError(fmt.Errorf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var gen generateResponse
	if err := json.Unmarshal(raw, &gen); err != nil {
		return crawler.TransportError(fmt.Errorf("decoding generate envelope: %w", err))
	}
	if gen.Error != "" {
		return crawler.TransportError(fmt.Errorf("ollama error: %s", gen.Error))
	}

	text := StripFences(gen.Response)
	if !json.Valid([]byte(text)) {
		c.logger.Debug("model produced non-JSON output", zap.Int("len", len(gen.Response)))
		return crawler.Malformed(strings.TrimSpace(gen.Response))
	}
	return crawler.Parsed(json.RawMessage(text))
}

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	bareFenceRe = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	thinkRe     = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// StripFences unwraps markdown code fences and removes reasoning blocks
// that some local models emit before the payload.
func StripFences(s string) string {
	s = thinkRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if m := jsonFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := bareFenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

func outcomeName(r crawler.OracleResult) string {
	switch r.Outcome {
	case crawler.OracleParsed:
		return "parsed"
	case crawler.OracleMalformed:
		return "malformed"
	default:
		return "transport"
	}
}
