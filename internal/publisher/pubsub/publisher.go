// Package pubsub sends crawled-page events to a Google Cloud Pub/Sub topic.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
)

// Publisher emits JSON-encoded page records on a Pub/Sub topic. Trace
// context is propagated through message attributes so downstream consumers
// can join the crawl trace.
type Publisher struct {
	topic *pubsub.Publisher
}

// New wraps the topic publisher. A nil topic yields a Publisher that fails
// every Publish, which keeps misconfiguration loud instead of silent.
func New(topic *pubsub.Publisher) *Publisher {
	return &Publisher{topic: topic}
}

// Publish marshals payload to JSON and sends it, blocking until the server
// acknowledges. Returns the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.topic == nil {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	attrs := attrCarrier{"content_type": "application/json"}
	otel.GetTextMapPropagator().Inject(ctx, attrs)

	res := p.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := res.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish page event: %w", err)
	}
	return id, nil
}

// Stop flushes any buffered messages and releases topic resources.
func (p *Publisher) Stop() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

// attrCarrier adapts Pub/Sub message attributes to the otel
// propagation.TextMapCarrier interface.
type attrCarrier map[string]string

func (c attrCarrier) Get(key string) string { return c[key] }

func (c attrCarrier) Set(key, value string) { c[key] = value }

func (c attrCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
