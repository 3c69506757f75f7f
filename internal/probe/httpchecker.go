package probe

import (
	"context"
	"net/http"
	"time"
)

// HTTPProber checks reachability at the transport level: any HTTP response,
// whatever its status code, counts as reachable.
type HTTPProber struct {
	Client *http.Client
}

func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = NewHTTPClient(ClientConfig{})
	}
	return &HTTPProber{Client: client}
}

func (h *HTTPProber) Probe(ctx context.Context, target string, timeout time.Duration) bool {
	return h.Check(ctx, target, timeout).Reachable
}

// Check issues one GET bounded by timeout. There are no retries.
func (h *HTTPProber) Check(ctx context.Context, target string, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{Reachable: false, Message: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return Result{Reachable: false, Message: err.Error(), LatencyMS: latency}
	}
	defer resp.Body.Close()

	return Result{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Message:    resp.Status,
		LatencyMS:  latency,
	}
}

var _ Prober = (*HTTPProber)(nil)
