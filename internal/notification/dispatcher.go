// Package notification fans user-facing events out to configured notifiers.
// Delivery is best-effort: a failing destination is logged and never blocks
// the pipeline.
package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/notification/types"
)

// Dispatcher delivers events to every registered notifier.
type Dispatcher struct {
	notifiers []types.Notifier
	logger    zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger.With().Str("component", "notifications").Logger(),
	}
}

// Register adds a notifier.
func (d *Dispatcher) Register(n types.Notifier) {
	d.notifiers = append(d.notifiers, n)
}

// Dispatch sends the event to every notifier. Per-notifier failures are
// logged; the last failure is returned so a notify job can be retried.
func (d *Dispatcher) Dispatch(ctx context.Context, event types.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var lastErr error
	for _, n := range d.notifiers {
		if err := n.Send(ctx, event); err != nil {
			d.logger.Warn().Err(err).
				Str("notifier", n.Name()).
				Str("type", event.Type).
				Int64("requestId", event.RequestID).
				Msg("Notification delivery failed")
			lastErr = err
			continue
		}
	}
	return lastErr
}
