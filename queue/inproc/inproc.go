// Package inproc is an in-process queue.Queue implementation backed by
// buffered Go channels. Used by tests and local tooling; production uses
// queue/pulsequeue.
package inproc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pradok/events-scheduler-sub000/queue"
)

// Queue implements queue.Queue with one buffered channel fan-out per topic.
// Every Subscribe call on a topic receives every message published to it
// after the subscription was opened (broadcast, not work-sharing, since
// there is exactly one process to share work across in tests).
type Queue struct {
	mu       sync.Mutex
	buffer   int
	subs     map[string][]chan queue.Message
	nextID   atomic.Int64
	closedCh chan struct{}
}

// New constructs an inproc Queue whose per-subscriber channels have the
// given buffer capacity.
func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		buffer: buffer,
		subs:   make(map[string][]chan queue.Message),
	}
}

// Publish implements queue.Queue.
func (q *Queue) Publish(_ context.Context, topic string, payload []byte) (string, error) {
	id := fmt.Sprintf("%s-%d", topic, q.nextID.Add(1))
	msg := queue.Message{ID: id, Payload: payload, Ack: func(context.Context) error { return nil }}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subs[topic] {
		select {
		case ch <- msg:
		default:
			// Buffer full: drop rather than block the publisher, matching
			// the at-least-once-but-not-guaranteed-delivery contract tests
			// opt into when they undersize a subscriber's buffer.
		}
	}
	return id, nil
}

// Subscribe implements queue.Queue.
func (q *Queue) Subscribe(ctx context.Context, topic, _ string) (<-chan queue.Message, context.CancelFunc, error) {
	ch := make(chan queue.Message, q.buffer)

	q.mu.Lock()
	q.subs[topic] = append(q.subs[topic], ch)
	q.mu.Unlock()

	_, cancel := context.WithCancel(ctx)
	removeAndClose := func() {
		cancel()
		q.mu.Lock()
		defer q.mu.Unlock()
		subs := q.subs[topic]
		for i, c := range subs {
			if c == ch {
				q.subs[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, removeAndClose, nil
}
