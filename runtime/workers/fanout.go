package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/observability"
)

// EventFanout drains the broker's delivery queue and pushes each event to
// its resolved targets. One consumer goroutine on one channel is what makes
// every observer of a room see events in broker acceptance order.
//
// Delivery into a sink is best effort with a per-sink timeout: a slow or
// gone connection loses events instead of stalling the room.
type EventFanout struct {
	log     *slog.Logger
	queue   <-chan contract.TargetedEvent
	timeout time.Duration
	stats   *observability.Stats
}

func NewEventFanout(log *slog.Logger, queue <-chan contract.TargetedEvent,
	timeout time.Duration, stats *observability.Stats) *EventFanout {
	return &EventFanout{log: log, queue: queue, timeout: timeout, stats: stats}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case te := <-w.queue:
			w.fanout(ctx, te)
		}
	}
}

func (w *EventFanout) fanout(ctx context.Context, te contract.TargetedEvent) {
	for _, sink := range te.Targets {
		deliveryCtx, cancel := context.WithTimeout(ctx, w.timeout)
		if err := sink.Consume(deliveryCtx, te.Event); err != nil {
			w.stats.DeliveryDropped()
			w.log.Debug("Event delivery dropped", "error", err)
		} else {
			w.stats.EventDelivered()
		}
		cancel()
	}
}
