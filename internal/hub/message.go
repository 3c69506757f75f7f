package hub

import (
	"encoding/json"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

const (
	TypeStatusChange  = "STATUS_CHANGE"
	TypeMonitorUpdate = "MONITOR_UPDATE"
)

// Message is one push-feed item. Only the variants in this package implement it.
type Message interface {
	Type() string
	payload() any
}

type StatusChange struct {
	MonitorID domain.MonitorID `json:"monitorId"`
	Status    domain.Status    `json:"status"`
}

func (StatusChange) Type() string { return TypeStatusChange }
func (m StatusChange) payload() any { return m }

// MonitorUpdate carries a full monitor object.
type MonitorUpdate struct {
	Monitor domain.Monitor
}

func (MonitorUpdate) Type() string { return TypeMonitorUpdate }
func (m MonitorUpdate) payload() any { return m.Monitor }

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode renders msg as {"type": ..., "data": ...}.
func Encode(msg Message) ([]byte, error) {
	return json.Marshal(envelope{Type: msg.Type(), Data: msg.payload()})
}
