package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Fetcher resolves a URL into rendered HTML plus a plain-text rendering.
// Rendering fidelity (JavaScript execution and so on) is the fetcher's
// concern, not the orchestrator's.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}

// Oracle is the external inference service. Infer sends one prompt and
// returns a tagged result; it never returns a Go error because transport
// failure is one of the tagged outcomes.
type Oracle interface {
	Infer(ctx context.Context, prompt string) OracleResult
}

// SnapshotStore writes raw page artifacts and returns a URI.
type SnapshotStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes page-completion events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// ProgressEvent is a point-in-time observation of a running session.
type ProgressEvent struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Phase     Phase     `json:"phase"`
	URL       string    `json:"url,omitempty"`
	Relevance int       `json:"relevance,omitempty"`
	PagesUsed int       `json:"pages_used"`
	Budget    int       `json:"budget"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Progress event types.
const (
	EventPhaseChange = "phase_change"
	EventPageDone    = "page_done"
	EventFetchError  = "fetch_error"
	EventDone        = "done"
)

// ProgressNotifier receives progress events. Implementations must not block
// the crawl; slow consumers drop events rather than stall workers.
type ProgressNotifier interface {
	Notify(event ProgressEvent)
}

// OracleOutcome tags an oracle response.
type OracleOutcome int

// Oracle outcomes. Malformed and Transport are handled by distinct fallback
// arms: Malformed indicates prompt/model drift and is logged as such, while
// Transport covers timeouts and unreachable backends.
const (
	OracleParsed OracleOutcome = iota
	OracleMalformed
	OracleTransport
)

// OracleResult is the tagged outcome of one inference call. Value holds
// syntactically valid JSON only when Outcome is OracleParsed; Raw holds the
// unparseable text for OracleMalformed; Err is set for OracleTransport.
type OracleResult struct {
	Outcome OracleOutcome
	Value   json.RawMessage
	Raw     string
	Err     error
}

// Parsed wraps a valid JSON payload.
func Parsed(value json.RawMessage) OracleResult {
	return OracleResult{Outcome: OracleParsed, Value: value}
}

// Malformed wraps a response that was received but failed JSON validation.
func Malformed(raw string) OracleResult {
	return OracleResult{Outcome: OracleMalformed, Raw: raw}
}

// TransportError wraps a timeout or connectivity failure.
func TransportError(err error) OracleResult {
	return OracleResult{Outcome: OracleTransport, Err: err}
}

// Decode unmarshals a parsed result into v. A result that is not parsed, or
// whose JSON does not fit v's shape, yields an error; the caller treats that
// as the malformed arm of its fallback logic. Partially valid structured
// output is never guessed at.
func (r OracleResult) Decode(v any) error {
	switch r.Outcome {
	case OracleParsed:
		if err := json.Unmarshal(r.Value, v); err != nil {
			return fmt.Errorf("oracle response does not match schema: %w", err)
		}
		return nil
	case OracleMalformed:
		return errors.New("oracle response is not valid JSON")
	default:
		return fmt.Errorf("oracle transport failure: %w", r.Err)
	}
}

// Failed reports whether the call produced no usable value.
func (r OracleResult) Failed() bool {
	return r.Outcome != OracleParsed
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
