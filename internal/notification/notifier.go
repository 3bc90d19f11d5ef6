// Package notification fans signal lifecycle events out to subscribers
// (log, websocket feed, Kafka). Delivery is best effort: a failing notifier
// never blocks or fails a state transition.
package notification

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pierrenik/signalauto/internal/model"
)

// Notifier is the interface for all event sinks.
type Notifier interface {
	// Notify delivers one event. Returns error if delivery fails.
	Notify(ctx context.Context, ev model.SignalEvent) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, ev model.SignalEvent) error

func (f Func) Notify(ctx context.Context, ev model.SignalEvent) error {
	return f(ctx, ev)
}

// LogNotifier writes every event to a structured logger.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default().
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l.With("component", "notify")}
}

func (n *LogNotifier) Notify(ctx context.Context, ev model.SignalEvent) error {
	attrs := []any{
		"kind", string(ev.Kind),
		"signal_id", ev.Signal.ID,
		"asset", ev.Signal.Asset,
		"direction", string(ev.Signal.Direction),
	}
	if ev.Kind == model.EventClosed {
		attrs = append(attrs, "status", string(ev.Signal.Status), "pnl_r", ev.Signal.PnLR)
	}
	n.log.InfoContext(ctx, "signal event", attrs...)
	return nil
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev model.SignalEvent) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
