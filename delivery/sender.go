package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hookline/hookline/registration"
	"github.com/hookline/hookline/signature"
)

// maxResponseBody caps how much of the endpoint's response is stored on the
// delivery record.
const maxResponseBody = 1000

// Sender performs one HTTP webhook delivery attempt.
type Sender struct {
	client         *http.Client
	defaultTimeout time.Duration
}

// NewSender creates a sender. defaultTimeout applies to registrations
// without an explicit per-attempt budget; the timeout is enforced per
// request because each registration carries its own.
func NewSender(defaultTimeout time.Duration) *Sender {
	return &Sender{
		client:         &http.Client{},
		defaultTimeout: defaultTimeout,
	}
}

// Send posts the delivery's payload snapshot to the registration's URL and
// returns the classified result. Any response in [200,300) is success;
// everything else — non-2xx statuses, timeouts, DNS and connect failures —
// is failure.
func (s *Sender) Send(ctx context.Context, reg *registration.Registration, d *Delivery) Result {
	timeout := reg.Timeout
	if timeout <= 0 {
		timeout = s.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(d.Payload))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	// Standard headers.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hookline/1.0")
	req.Header.Set("X-Webhook-Event", d.EventType)
	req.Header.Set("X-Webhook-Delivery", d.ID.String())

	// Hex HMAC-SHA256 over the raw body with the registration's secret.
	// Receivers recompute the MAC over the body as received.
	req.Header.Set("X-Webhook-Signature", signature.Sign(d.Payload, reg.Secret))

	// Custom registration headers.
	for k, v := range reg.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a user-configured webhook destination; SSRF is by design.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if readErr != nil {
		return Result{
			StatusCode: resp.StatusCode,
			Error:      fmt.Sprintf("read response: %v", readErr),
			LatencyMs:  int(latency),
		}
	}

	return Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
}
