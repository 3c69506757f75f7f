// Package webhook delivers a monitor's configured payload on status change.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

const DefaultTimeout = 5 * time.Second

var (
	defaultDown = []byte(`{"message":"Offline"}`)
	defaultUp   = []byte(`{"message":"Online"}`)
)

var ErrNoWebhook = errors.New("monitor has no webhook")

// DeliveryError reports a non-2xx response from the webhook endpoint.
type DeliveryError struct {
	URL        string
	StatusCode int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook %s: status %d", e.URL, e.StatusCode)
}

// Payload returns the body sent for status. The configured up/down template
// is used verbatim; otherwise a default {"message": ...} body.
func Payload(wh domain.Webhook, status domain.Status) []byte {
	if status == domain.StatusDown {
		if present(wh.Message.Down) {
			return wh.Message.Down
		}
		return defaultDown
	}
	if present(wh.Message.Up) {
		return wh.Message.Up
	}
	return defaultUp
}

func present(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

type Dispatcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewDispatcher uses http.DefaultClient when client is nil and DefaultTimeout
// when timeout is not positive.
func NewDispatcher(client *http.Client, timeout time.Duration) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{client: client, timeout: timeout}
}

// Dispatch POSTs the payload for status to wh.URL. One attempt, no retries.
func (d *Dispatcher) Dispatch(ctx context.Context, wh *domain.Webhook, status domain.Status) error {
	if wh == nil || wh.URL == "" {
		return ErrNoWebhook
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(Payload(*wh, status)))
	if err != nil {
		return fmt.Errorf("webhook %s: build request: %w", wh.URL, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", wh.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return &DeliveryError{URL: wh.URL, StatusCode: resp.StatusCode}
	}
	return nil
}
