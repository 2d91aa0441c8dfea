package executor

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pradok/events-scheduler-sub000/domain"
)

// Sink delivers a single occurrence's payload to its destination channel.
// Implementations classify failures via PermanentError: anything else is
// treated as transient and subject to the retry budget (spec §4.5).
type Sink interface {
	Deliver(ctx context.Context, occ *domain.Occurrence) error
}

// PermanentError marks a delivery failure the executor must not retry
// (e.g. a 4xx response: the request itself is malformed or rejected, and
// retrying identically will not help).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// HTTPSink is the default delivery sink: it POSTs DeliveryPayload to a
// per-channel URL and classifies 2xx as success, 4xx as permanent, and
// everything else (5xx, transport errors, timeouts) as transient.
type HTTPSink struct {
	Client      *http.Client
	ChannelURLs map[string]string
	Timeout     time.Duration
}

// NewHTTPSink constructs an HTTPSink. channelURLs maps a Policy.Channel()
// value (e.g. "email") to the webhook URL deliveries for that channel are
// POSTed to.
func NewHTTPSink(client *http.Client, channelURLs map[string]string, timeout time.Duration) *HTTPSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSink{Client: client, ChannelURLs: channelURLs, Timeout: timeout}
}

// Deliver implements Sink.
func (s *HTTPSink) Deliver(ctx context.Context, occ *domain.Occurrence) error {
	url, ok := s.ChannelURLs[occ.Channel]
	if !ok {
		return &PermanentError{Err: fmt.Errorf("executor: no URL configured for channel %q", occ.Channel)}
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(occ.DeliveryPayload))
	if err != nil {
		return &PermanentError{Err: fmt.Errorf("executor: building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", string(occ.IdempotencyKey))

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("executor: delivering to %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &PermanentError{Err: fmt.Errorf("executor: sink returned %d", resp.StatusCode)}
	default:
		return fmt.Errorf("executor: sink returned %d", resp.StatusCode)
	}
}
