// Package hub fans status changes out to live push-feed connections.
package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

// Subscriber is one live connection.
type Subscriber interface {
	ID() string
	Ready() bool
	Send(Message) error
}

type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
	log  *zap.Logger
}

func New(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[string]Subscriber), log: log}
}

func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subs[s.ID()] = s
	h.mu.Unlock()
}

func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.subs, s.ID())
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Broadcast delivers msg to every ready subscriber and returns how many
// accepted it. A failing subscriber never affects the others.
func (h *Hub) Broadcast(msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for id, s := range h.subs {
		if !s.Ready() {
			continue
		}
		if err := s.Send(msg); err != nil {
			h.log.Debug("broadcast_skipped",
				zap.String("conn_id", id),
				zap.String("type", msg.Type()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (h *Hub) BroadcastStatusChange(id domain.MonitorID, status domain.Status) int {
	return h.Broadcast(StatusChange{MonitorID: id, Status: status})
}
