package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

// Store keeps monitors, events and notifications in process memory.
type Store struct {
	mu            sync.RWMutex
	monitors      map[domain.MonitorID]*domain.Monitor
	events        map[domain.MonitorID][]domain.Event
	notifications []domain.Notification
	now           func() time.Time
}

func New() *Store {
	return &Store{
		monitors:      make(map[domain.MonitorID]*domain.Monitor),
		events:        make(map[domain.MonitorID][]domain.Event),
		notifications: make([]domain.Notification, 0, 128),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ---- MonitorRegistry ----

func (m *Store) ListActive(ctx context.Context) ([]domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		if mon.Active {
			out = append(out, cloneMonitor(mon))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Store) Get(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return nil, fmt.Errorf("monitor %s: %w", id, repo.ErrNotFound)
	}
	out := cloneMonitor(mon)
	return &out, nil
}

func (m *Store) Create(ctx context.Context, mon *domain.Monitor) error {
	mon.ApplyDefaults()
	if err := mon.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if mon.ID == "" {
		mon.ID = domain.MonitorID(uuid.NewString())
	}
	if _, exists := m.monitors[mon.ID]; exists {
		return fmt.Errorf("monitor %s already exists", mon.ID)
	}
	now := m.now()
	if mon.CreatedAt.IsZero() {
		mon.CreatedAt = now
	}
	mon.UpdatedAt = now
	if mon.Webhook != nil {
		if mon.Webhook.ID == "" {
			mon.Webhook.ID = uuid.NewString()
		}
		mon.Webhook.MonitorID = mon.ID
	}
	cp := cloneMonitor(mon)
	m.monitors[mon.ID] = &cp
	return nil
}

func (m *Store) Update(ctx context.Context, mon *domain.Monitor) error {
	mon.ApplyDefaults()
	if err := mon.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.monitors[mon.ID]
	if !ok {
		return fmt.Errorf("monitor %s: %w", mon.ID, repo.ErrNotFound)
	}
	mon.CreatedAt = cur.CreatedAt
	mon.UpdatedAt = m.now()
	if mon.Webhook != nil {
		if mon.Webhook.ID == "" {
			mon.Webhook.ID = uuid.NewString()
		}
		mon.Webhook.MonitorID = mon.ID
	}
	cp := cloneMonitor(mon)
	m.monitors[mon.ID] = &cp
	return nil
}

func (m *Store) Delete(ctx context.Context, id domain.MonitorID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[id]; !ok {
		return fmt.Errorf("monitor %s: %w", id, repo.ErrNotFound)
	}
	delete(m.monitors, id)
	delete(m.events, id)
	kept := m.notifications[:0]
	for _, n := range m.notifications {
		if n.MonitorID != id {
			kept = append(kept, n)
		}
	}
	m.notifications = kept
	return nil
}

// ---- StatusStore ----

func (m *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, status domain.Status, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return fmt.Errorf("monitor %s: %w", id, repo.ErrNotFound)
	}
	ts := checkedAt
	mon.Status = status
	mon.LastCheck = &ts
	return nil
}

// ---- EventStore ----

func (m *Store) AppendEvent(ctx context.Context, e *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[e.MonitorID]; !ok {
		return fmt.Errorf("monitor %s: %w", e.MonitorID, repo.ErrNotFound)
	}
	if e.ID == "" {
		e.ID = domain.EventID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.events[e.MonitorID] = append(m.events[e.MonitorID], *e)
	return nil
}

func (m *Store) LatestEvent(ctx context.Context, id domain.MonitorID) (*domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[id]
	if len(evs) == 0 {
		return nil, nil
	}
	e := evs[len(evs)-1]
	return &e, nil
}

func (m *Store) ListEvents(ctx context.Context, id domain.MonitorID, limit int) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[id]
	limit = repo.Limit(limit)
	out := make([]domain.Event, 0, min(limit, len(evs)))
	for i := len(evs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, evs[i])
	}
	return out, nil
}

// ---- NotificationStore ----

func (m *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.monitors[n.MonitorID]; !ok {
		return fmt.Errorf("monitor %s: %w", n.MonitorID, repo.ErrNotFound)
	}
	if n.ID == "" {
		n.ID = domain.NotificationID(uuid.NewString())
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	m.notifications = append(m.notifications, *n)
	return nil
}

func (m *Store) ListNotifications(ctx context.Context, user domain.UserID, limit int) ([]domain.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	limit = repo.Limit(limit)
	out := make([]domain.Notification, 0, limit)
	for i := len(m.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if m.notifications[i].UserID == user {
			out = append(out, m.notifications[i])
		}
	}
	return out, nil
}

func (m *Store) MarkSent(ctx context.Context, user domain.UserID, ids []domain.NotificationID) (int, error) {
	want := make(map[domain.NotificationID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for i := range m.notifications {
		n := &m.notifications[i]
		if _, ok := want[n.ID]; !ok || n.UserID != user || n.Sent {
			continue
		}
		n.Sent = true
		changed++
	}
	return changed, nil
}

func cloneMonitor(m *domain.Monitor) domain.Monitor {
	out := *m
	if m.LastCheck != nil {
		ts := *m.LastCheck
		out.LastCheck = &ts
	}
	if m.Webhook != nil {
		wh := *m.Webhook
		wh.Message.Up = append([]byte(nil), m.Webhook.Message.Up...)
		wh.Message.Down = append([]byte(nil), m.Webhook.Message.Down...)
		out.Webhook = &wh
	}
	return out
}

var _ repo.Store = (*Store)(nil)
