// Package notify writes in-app notifications and forwards them to operator
// channels (Slack, Telegram).
package notify

import (
	"context"
	"errors"

	"go.uber.org/multierr"
)

// ErrDisabled is returned by a sender that has no destination configured.
var ErrDisabled = errors.New("sender disabled")

// Sender delivers one message to an operator channel.
type Sender interface {
	Send(ctx context.Context, title, text string) error
}

// Multi fans a message out to every sender. All senders are attempted.
type Multi []Sender

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, s := range m {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Send(ctx, title, text))
	}
	return err
}
