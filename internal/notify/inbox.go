package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/uptimewatch/internal/domain"
	"github.com/hamed0406/uptimewatch/internal/repo"
)

// Message is the user-facing text of a transition notification.
func Message(monitorName string, status domain.Status) string {
	return fmt.Sprintf("Monitor %s is %s", monitorName, status)
}

// Notifier stores an unsent notification for the monitor owner and, when an
// operator Sender is configured, forwards the same text to it.
type Notifier struct {
	store  repo.NotificationStore
	sender Sender
	log    *zap.Logger
	now    func() time.Time
}

// NewNotifier accepts a nil sender and a nil logger.
func NewNotifier(store repo.NotificationStore, sender Sender, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		store:  store,
		sender: sender,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Notify persists the notification. Operator delivery failures are logged and
// never returned.
func (n *Notifier) Notify(ctx context.Context, m domain.Monitor, status domain.Status) (domain.Notification, error) {
	note := domain.Notification{
		UserID:    m.UserID,
		MonitorID: m.ID,
		Message:   Message(m.Name, status),
		Status:    status,
		Sent:      false,
		CreatedAt: n.now(),
	}
	if err := n.store.CreateNotification(ctx, &note); err != nil {
		return domain.Notification{}, fmt.Errorf("create notification for %s: %w", m.ID, err)
	}

	if n.sender != nil {
		if err := n.sender.Send(ctx, "uptimewatch: "+string(status), note.Message+"\n"+m.URL); err != nil {
			n.log.Warn("operator_notify_failed",
				zap.String("monitor_id", string(m.ID)),
				zap.Error(err),
			)
		}
	}
	return note, nil
}
