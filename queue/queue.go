// Package queue defines the narrow publish/subscribe seam the scheduler,
// executor, and reschedule coordinator use to move work between themselves:
// the scheduler publishes claimed occurrence IDs for the executor to
// consume, and the reschedule coordinator consumes inbound user-lifecycle
// notifications. queue/inproc backs tests and local tooling; queue/pulsequeue
// is the production Redis-backed implementation.
package queue

import "context"

// Message is a single queued item. Ack must be called once processing
// completes successfully; failing to ack causes pulsequeue's consumer group
// to redeliver the message to another consumer after its visibility
// timeout.
type Message struct {
	ID      string
	Payload []byte
	Ack     func(ctx context.Context) error
}

// Queue is the publish/subscribe port. Topics are plain strings (e.g.
// "occurrences.ready", "users.events"); callers are responsible for topic
// naming conventions.
type Queue interface {
	// Publish appends payload to topic, returning the assigned message ID.
	Publish(ctx context.Context, topic string, payload []byte) (string, error)

	// Subscribe opens a consumer-group subscription on topic and returns a
	// channel of incoming messages plus a cancel function that stops
	// consumption and releases the subscription. consumerGroup partitions
	// delivery: every consumer group sees every message, but only one
	// member of a given group receives any one message.
	Subscribe(ctx context.Context, topic, consumerGroup string) (<-chan Message, context.CancelFunc, error)
}
