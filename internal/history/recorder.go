// Package history records status transitions as immutable events.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

type Recorder struct {
	events repo.EventStore
	now    func() time.Time
}

func NewRecorder(events repo.EventStore) *Recorder {
	return &Recorder{
		events: events,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Record appends an event for monitorID. Earlier events are never touched.
func (r *Recorder) Record(ctx context.Context, monitorID domain.MonitorID, status domain.Status) (domain.Event, error) {
	e := domain.Event{
		MonitorID: monitorID,
		Status:    status,
		CreatedAt: r.now(),
	}
	if err := r.events.AppendEvent(ctx, &e); err != nil {
		return domain.Event{}, fmt.Errorf("record event for %s: %w", monitorID, err)
	}
	return e, nil
}

// Latest returns the most recent event of the monitor, or nil.
func (r *Recorder) Latest(ctx context.Context, monitorID domain.MonitorID) (*domain.Event, error) {
	e, err := r.events.LatestEvent(ctx, monitorID)
	if err != nil {
		return nil, fmt.Errorf("latest event for %s: %w", monitorID, err)
	}
	return e, nil
}
