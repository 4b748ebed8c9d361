// Package notify pushes operator alerts about marketplace incidents to
// Telegram and Discord. Alerts carry their event type so channels can style
// them and the operator can subscribe to only the events they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Alert is one operator notification. Event drives filtering and per-channel
// styling; Title and Body are rendered by each sender in its own format.
type Alert struct {
	Event string
	Title string
	Body  string
}

// Sender delivers alerts over one channel.
type Sender interface {
	Send(ctx context.Context, alert Alert) error
	// Name identifies the channel in logs and combined errors.
	Name() string
}

// Notifier fans alerts out to every configured sender. Events outside the
// subscription list are dropped; an empty list subscribes to everything.
type Notifier struct {
	senders []Sender
	allowed map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders, filtered to
// the given event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		allowed: allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Publish delivers the alert to every sender unless its event is outside the
// subscription. Per-sender failures are collected into one combined error so
// a dead webhook cannot silence the remaining channels.
func (n *Notifier) Publish(ctx context.Context, alert Alert) error {
	if len(n.allowed) > 0 && !n.allowed[alert.Event] {
		n.logger.DebugContext(ctx, "alert filtered",
			slog.String("event", alert.Event),
		)
		return nil
	}

	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, alert); err != nil {
			n.logger.ErrorContext(ctx, "alert delivery failed",
				slog.String("sender", s.Name()),
				slog.String("event", alert.Event),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert delivered",
			slog.String("sender", s.Name()),
			slog.String("title", alert.Title),
		)
	}

	if len(failed) > 0 {
		return fmt.Errorf("notify: %s", strings.Join(failed, "; "))
	}
	return nil
}
