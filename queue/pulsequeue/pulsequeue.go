// Package pulsequeue is the production queue.Queue implementation: Redis
// streams via goa.design/pulse, one stream per topic and one Pulse sink
// (consumer group) per (topic, consumerGroup) pair. Adapted from the
// goa-ai Pulse client/subscriber wrapper, generalized from runtime agent
// events to opaque byte payloads.
package pulsequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/pradok/events-scheduler-sub000/queue"
)

// Options configures a Queue.
type Options struct {
	// Redis is the connection backing every Pulse stream. Required.
	Redis *redis.Client
	// StreamMaxLen bounds entries retained per stream. Zero uses Pulse
	// defaults.
	StreamMaxLen int
	// SubscriberBuffer sizes each Subscribe call's returned channel.
	// Defaults to 64.
	SubscriberBuffer int
}

// Queue implements queue.Queue backed by Redis via goa.design/pulse.
type Queue struct {
	redis   *redis.Client
	maxLen  int
	buffer  int
	mu      sync.Mutex
	streams map[string]*streaming.Stream
}

// New constructs a Queue. Returns an error if opts.Redis is nil.
func New(opts Options) (*Queue, error) {
	if opts.Redis == nil {
		return nil, errors.New("pulsequeue: redis client is required")
	}
	buffer := opts.SubscriberBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		redis:   opts.Redis,
		maxLen:  opts.StreamMaxLen,
		buffer:  buffer,
		streams: make(map[string]*streaming.Stream),
	}, nil
}

func (q *Queue) stream(name string) (*streaming.Stream, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if s, ok := q.streams[name]; ok {
		return s, nil
	}
	var opts []streamopts.Stream
	if q.maxLen > 0 {
		opts = append(opts, streamopts.WithStreamMaxLen(q.maxLen))
	}
	s, err := streaming.NewStream(name, q.redis, opts...)
	if err != nil {
		return nil, fmt.Errorf("pulsequeue: create stream %q: %w", name, err)
	}
	q.streams[name] = s
	return s, nil
}

// Publish implements queue.Queue.
func (q *Queue) Publish(ctx context.Context, topic string, payload []byte) (string, error) {
	s, err := q.stream(topic)
	if err != nil {
		return "", err
	}
	id, err := s.Add(ctx, topic, payload)
	if err != nil {
		return "", fmt.Errorf("pulsequeue: publish to %q: %w", topic, err)
	}
	return id, nil
}

// Subscribe implements queue.Queue. Each returned Message's Ack
// acknowledges the underlying Pulse sink entry; failing to ack causes
// Pulse to redeliver it to another consumer in the same group once its
// visibility timeout elapses.
func (q *Queue) Subscribe(ctx context.Context, topic, consumerGroup string) (<-chan queue.Message, context.CancelFunc, error) {
	s, err := q.stream(topic)
	if err != nil {
		return nil, nil, err
	}
	sink, err := s.NewSink(ctx, consumerGroup)
	if err != nil {
		return nil, nil, fmt.Errorf("pulsequeue: open sink %q on %q: %w", consumerGroup, topic, err)
	}

	out := make(chan queue.Message, q.buffer)
	runCtx, cancel := context.WithCancel(ctx)
	go q.consume(runCtx, sink, out)

	cancelFunc := func() {
		cancel()
		sink.Close(context.Background())
	}
	return out, cancelFunc, nil
}

func (q *Queue) consume(ctx context.Context, sink *streaming.Sink, out chan<- queue.Message) {
	defer close(out)
	ch := sink.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			msg := queue.Message{
				ID:      evt.ID,
				Payload: evt.Payload,
				Ack: func(ackCtx context.Context) error {
					return sink.Ack(ackCtx, evt)
				},
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}
