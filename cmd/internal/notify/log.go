package notify

import (
	"context"
	"log/slog"
)

// LogSender records deliveries without sending anything. Development only.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "notify.log.send", "to", msg.To, "subject", msg.Subject)
	return nil
}
