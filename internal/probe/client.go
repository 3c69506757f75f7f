package probe

import (
	"net"
	"net/http"
	"time"
)

const DefaultUserAgent = "uptimewatch/1.0"

type ClientConfig struct {
	UserAgent       string
	MaxIdleConns    int
	IdleConnTimeout time.Duration
}

// NewHTTPClient returns a client shared by all probes. It carries no overall
// timeout: every request is bounded by its own context deadline.
func NewHTTPClient(cfg ClientConfig) *http.Client {
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 100
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = 90 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: userAgentTransport{rt: transport, userAgent: cfg.UserAgent},
	}
}

type userAgentTransport struct {
	rt        http.RoundTripper
	userAgent string
}

func (u userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" && u.userAgent != "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", u.userAgent)
	}
	return u.rt.RoundTrip(req)
}
