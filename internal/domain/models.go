package domain

import (
	"encoding/json"
	"time"
)

type (
	MonitorID      string
	UserID         string
	EventID        string
	NotificationID string
)

// Status is the reachability state of a monitor.
type Status string

const (
	StatusUp      Status = "UP"
	StatusDown    Status = "DOWN"
	StatusUnknown Status = "UNKNOWN"
)

// StatusFromProbe maps a probe outcome to UP/DOWN.
func StatusFromProbe(reachable bool) Status {
	if reachable {
		return StatusUp
	}
	return StatusDown
}

// Known reports whether s is a status a transition can be measured against.
func (s Status) Known() bool {
	return s == StatusUp || s == StatusDown
}

type Monitor struct {
	ID        MonitorID  `json:"id"`
	UserID    UserID     `json:"user_id"`
	Name      string     `json:"name"`
	URL       string     `json:"url"`
	Interval  int        `json:"interval"` // seconds
	Timeout   int        `json:"timeout"`  // seconds
	Active    bool       `json:"is_active"`
	Status    Status     `json:"status"`
	LastCheck *time.Time `json:"last_check,omitempty"`
	Webhook   *Webhook   `json:"webhook,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (m Monitor) IntervalDuration() time.Duration {
	return time.Duration(m.Interval) * time.Second
}

func (m Monitor) TimeoutDuration() time.Duration {
	return time.Duration(m.Timeout) * time.Second
}

// WebhookMessage holds the optional payload templates. Up and Down are sent
// verbatim as the POST body.
type WebhookMessage struct {
	Up      json.RawMessage `json:"up,omitempty"`
	Down    json.RawMessage `json:"down,omitempty"`
	Message string          `json:"message,omitempty"`
}

type Webhook struct {
	ID        string         `json:"id"`
	MonitorID MonitorID      `json:"monitor_id"`
	URL       string         `json:"url"`
	Message   WebhookMessage `json:"message"`
}

// Event is an immutable status transition record.
type Event struct {
	ID        EventID   `json:"id"`
	MonitorID MonitorID `json:"monitor_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type Notification struct {
	ID        NotificationID `json:"id"`
	UserID    UserID         `json:"user_id"`
	MonitorID MonitorID      `json:"monitor_id"`
	Message   string         `json:"message"`
	Status    Status         `json:"status"`
	Sent      bool           `json:"sent"`
	CreatedAt time.Time      `json:"created_at"`
}

// Transition exists only for the duration of one check.
type Transition struct {
	Monitor  Monitor
	Previous Status
	Current  Status
	At       time.Time
}
