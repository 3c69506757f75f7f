package probe

import (
	"context"
	"time"
)

// Result is the detailed outcome of a single reachability check.
//
// StatusCode is 0 when no response was received.
type Result struct {
	Reachable  bool    `json:"reachable"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Message    string  `json:"message"`
}

// Prober answers whether a URL responded within the timeout.
type Prober interface {
	Probe(ctx context.Context, url string, timeout time.Duration) bool
}
