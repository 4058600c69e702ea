// Package notify delivers operator alerts for risk events. Alerts fan out to
// every configured channel (Telegram, Discord) and can be filtered by event
// type so operators only receive the classes of alert they care about, e.g.
// stop-outs and breaches but not margin calls.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Pablo69latrick/teda-clone-sub002/internal/domain"
)

// Alert is one operator notification. Event carries the risk event name
// (margin_call, stop_out, account_breached, position_closed) so each channel
// can render severity its own way.
type Alert struct {
	Event   string
	Title   string
	Message string
	At      time.Time
}

// severity buckets events for channel-specific rendering. Stop-outs and
// breaches are account-terminal; margin calls are warnings; everything else
// is informational.
func (a Alert) severity() string {
	switch a.Event {
	case domain.EventStopOut, domain.EventAccountBreached:
		return "critical"
	case domain.EventMarginCall:
		return "warning"
	default:
		return "info"
	}
}

// Sender is the interface each alert channel implements.
type Sender interface {
	// Send delivers the alert.
	Send(ctx context.Context, a Alert) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches alerts to one or more Senders. It maintains a set of
// allowed event types; Notify only forwards alerts whose event type is in the
// allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
	now     func() time.Time
}

// NewNotifier creates a Notifier that delivers to the given senders. Only
// events whose type appears in the events slice are forwarded by Notify. If
// events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
		now:     time.Now,
	}
}

// Notify sends an alert to all senders only if the event type is in the
// allowed list. If no events were configured, all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, Alert{
		Event:   event,
		Title:   title,
		Message: message,
		At:      n.now().UTC(),
	})
}

// dispatch iterates over all senders and delivers the alert. Errors from
// individual senders are collected and returned combined; one sender failing
// does not prevent delivery to the rest.
func (n *Notifier) dispatch(ctx context.Context, a Alert) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "alert sent",
			slog.String("sender", s.Name()),
			slog.String("event", a.Event),
			slog.String("title", a.Title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
