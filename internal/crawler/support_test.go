package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// fakeOracle routes prompts through a scripted respond function and records
// every prompt it saw. A nil respond function fails every call.
type fakeOracle struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) OracleResult
}

func (f *fakeOracle) Infer(_ context.Context, prompt string) OracleResult {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	fn := f.respond
	f.mu.Unlock()
	if fn == nil {
		return TransportError(errors.New("oracle unavailable"))
	}
	return fn(prompt)
}

func (f *fakeOracle) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func parsedJSON(s string) OracleResult {
	return Parsed(json.RawMessage(s))
}

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

// fakeFetcher serves canned pages keyed by canonical URL and records every
// fetch in order.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]FetchResult
	errs  map[string]error
	urls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[string]FetchResult),
		errs:  make(map[string]error),
	}
}

func (f *fakeFetcher) addPage(url, title, html string) {
	f.pages[url] = FetchResult{URL: url, StatusCode: 200, HTML: html, Title: title}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (FetchResult, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if err, ok := f.errs[url]; ok {
		return FetchResult{}, err
	}
	if page, ok := f.pages[url]; ok {
		return page, nil
	}
	return FetchResult{}, fmt.Errorf("no fixture for %s", url)
}

func (f *fakeFetcher) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.urls))
	copy(out, f.urls)
	return out
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (f *fakeNotifier) Notify(event ProgressEvent) {
	f.mu.Lock()
	f.events = append(f.events, event)
	f.mu.Unlock()
}

func (f *fakeNotifier) byType(eventType string) []ProgressEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ProgressEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: make(map[string][]byte)}
}

func (f *fakeBlobStore) PutObject(_ context.Context, path, _ string, data []byte) (string, error) {
	f.mu.Lock()
	f.objects[path] = data
	f.mu.Unlock()
	return "mem://" + path, nil
}

func (f *fakeBlobStore) paths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.objects))
	for p := range f.objects {
		out = append(out, p)
	}
	return out
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []fakeMessage
}

type fakeMessage struct {
	topic   string
	payload any
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	f.mu.Lock()
	f.messages = append(f.messages, fakeMessage{topic: topic, payload: payload})
	f.mu.Unlock()
	return "msg", nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
