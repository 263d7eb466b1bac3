package channels

import (
	"context"
	"errors"
	"log/slog"

	"github.com/courier-ai/courier/internal/bus"
	"github.com/courier-ai/courier/internal/observability"
)

// Dispatcher consumes outbound messages from the bus and delivers each to
// the adapter named by its Channel field. Messages for unknown channels
// are logged and dropped; a failed send does not stop the dispatcher.
type Dispatcher struct {
	bus      *bus.MessageBus
	registry *Registry
	logger   *slog.Logger
}

func NewDispatcher(b *bus.MessageBus, registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		bus:      b,
		registry: registry,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Run delivers outbound messages until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.bus.ConsumeOutbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		ch, ok := d.registry.Get(msg.Channel)
		if !ok {
			d.logger.Warn("dropping message for unknown channel",
				"channel", msg.Channel, "chat_id", msg.ChatID)
			observability.MessagesProcessed.WithLabelValues(msg.Channel, "dropped").Inc()
			continue
		}

		if err := ch.Send(ctx, msg); err != nil {
			d.logger.Error("channel send failed",
				"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
			observability.MessagesProcessed.WithLabelValues(msg.Channel, "send_error").Inc()
			continue
		}
		observability.MessagesProcessed.WithLabelValues(msg.Channel, "delivered").Inc()
	}
}
