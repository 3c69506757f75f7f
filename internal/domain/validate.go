package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const (
	DefaultInterval = 60
	DefaultTimeout  = 30

	MinInterval = 30
	MaxInterval = 86400
	MinTimeout  = 5
	MaxTimeout  = 30

	maxNameLen = 100
)

var ErrInvalidMonitor = errors.New("invalid monitor")

// ApplyDefaults fills zero-valued check settings.
func (m *Monitor) ApplyDefaults() {
	if m.Interval == 0 {
		m.Interval = DefaultInterval
	}
	if m.Timeout == 0 {
		m.Timeout = DefaultTimeout
	}
	if m.Status == "" {
		m.Status = StatusUnknown
	}
}

// Validate checks the monitor invariants. Errors wrap ErrInvalidMonitor.
func (m Monitor) Validate() error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return invalid("name is required")
	}
	if len(name) > maxNameLen {
		return invalid("name must be less than %d characters", maxNameLen)
	}
	if !IsHTTPURL(m.URL) {
		return invalid("url %q must be an absolute http(s) url", m.URL)
	}
	if m.Interval < MinInterval || m.Interval > MaxInterval {
		return invalid("interval %ds out of range %d..%d", m.Interval, MinInterval, MaxInterval)
	}
	if m.Timeout < MinTimeout || m.Timeout > MaxTimeout {
		return invalid("timeout %ds out of range %d..%d", m.Timeout, MinTimeout, MaxTimeout)
	}
	if m.Timeout >= m.Interval {
		return invalid("timeout %ds must be shorter than interval %ds", m.Timeout, m.Interval)
	}
	switch m.Status {
	case "", StatusUp, StatusDown, StatusUnknown:
	default:
		return invalid("unknown status %q", m.Status)
	}
	if m.Webhook != nil && !IsHTTPURL(m.Webhook.URL) {
		return invalid("webhook url %q must be an absolute http(s) url", m.Webhook.URL)
	}
	return nil
}

// IsHTTPURL reports whether raw is an absolute http or https URL with a host.
func IsHTTPURL(raw string) bool {
	u, err := url.ParseRequestURI(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidMonitor, fmt.Sprintf(format, args...))
}
