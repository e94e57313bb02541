package broker

import (
	"context"

	"leadintake/pkg/models"
)

// Producer publishes envelopes. The intake service publishes enrichment
// tasks; consumers publish to the DLQ.
type Producer interface {
	Publish(ctx context.Context, topic string, msg models.MessageEnvelope) error
	Close() error
}

// Consumer delivers every message of topic to handler until ctx is done.
// A handler error is retried by the consumer and ends in the DLQ.
type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// Pinger is implemented by brokers that can report reachability to the
// health registry.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HandlerFunc func(ctx context.Context, msg models.MessageEnvelope) error
