// Package notify delivers capability change messages.
package notify

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Notifier interface {
	Send(ctx context.Context, title, text string) error
}

// Multi sends to every notifier and returns all of their errors combined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, title, text string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.Send(ctx, title, text))
	}
	return err
}

// Log writes notifications to a zap logger, so changes are recorded even
// without a webhook.
type Log struct{ Logger *zap.Logger }

func (l Log) Send(_ context.Context, title, text string) error {
	l.Logger.Info("capability_notification", zap.String("title", title), zap.String("text", text))
	return nil
}
