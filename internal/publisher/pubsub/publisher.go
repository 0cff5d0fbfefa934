// Package pubsub implements a Google Cloud Pub/Sub publisher for record
// notifications.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publishFunc func(ctx context.Context, msg *pubsub.Message) publishResult

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	publish publishFunc
	stop    func()
}

// New creates a Publisher for the provided topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	if publisher == nil {
		return &Publisher{}
	}
	return &Publisher{
		publish: func(ctx context.Context, msg *pubsub.Message) publishResult {
			return publisher.Publish(ctx, msg)
		},
		stop: publisher.Stop,
	}
}

// Publish marshals the payload to JSON and publishes it. Paper records also
// carry their year and category as attributes so subscribers can filter.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.publish == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: attributes(topic, payload)}
	id, err := p.publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p.stop != nil {
		p.stop()
	}
}

func attributes(topic string, payload any) map[string]string {
	attrs := map[string]string{"topic": topic}
	var rec *harvest.PaperRecord
	switch v := payload.(type) {
	case harvest.PaperRecord:
		rec = &v
	case *harvest.PaperRecord:
		rec = v
	}
	if rec != nil {
		attrs["year"] = strconv.Itoa(rec.Year)
		attrs["annotation"] = rec.Category
	}
	return attrs
}
