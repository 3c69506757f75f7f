package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
)

var ErrNotFound = errors.New("not found")

// DefaultListLimit bounds history and inbox reads when the caller passes no limit.
const DefaultListLimit = 50

// Ports (interfaces) — swap in any DB adapter later.

// MonitorRegistry owns monitor definitions. Delete cascades to the
// monitor's events, notifications and webhook.
type MonitorRegistry interface {
	ListActive(ctx context.Context) ([]domain.Monitor, error)
	Get(ctx context.Context, id domain.MonitorID) (*domain.Monitor, error)
	Create(ctx context.Context, m *domain.Monitor) error
	Update(ctx context.Context, m *domain.Monitor) error
	Delete(ctx context.Context, id domain.MonitorID) error
}

// EventStore is append-only. Reads are most recent first.
type EventStore interface {
	AppendEvent(ctx context.Context, e *domain.Event) error
	// LatestEvent returns nil, nil when the monitor has no events.
	LatestEvent(ctx context.Context, id domain.MonitorID) (*domain.Event, error)
	ListEvents(ctx context.Context, id domain.MonitorID, limit int) ([]domain.Event, error)
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, user domain.UserID, limit int) ([]domain.Notification, error)
	// MarkSent flips sent=true for the user's notifications among ids and
	// returns how many rows changed.
	MarkSent(ctx context.Context, user domain.UserID, ids []domain.NotificationID) (int, error)
}

type StatusStore interface {
	UpdateStatus(ctx context.Context, id domain.MonitorID, status domain.Status, checkedAt time.Time) error
}

// Store is everything the engine and the API need from persistence.
type Store interface {
	MonitorRegistry
	EventStore
	NotificationStore
	StatusStore
}

// Limit returns limit, or DefaultListLimit when limit is not positive.
func Limit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
