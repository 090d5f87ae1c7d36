package sink

import (
	"context"

	"chat-relay/domain/event"
	"chat-relay/errors"
)

// WebsocketSink is the delivery channel behind one websocket connection.
// The fan-out worker pushes into it; the connection's write pump drains it.
type WebsocketSink struct {
	Events chan event.DomainEvent
}

func NewWebsocketSink(bufferSize int) *WebsocketSink {
	return &WebsocketSink{Events: make(chan event.DomainEvent, bufferSize)}
}

// Consume is called by the fan-out worker. A full buffer means the client
// cannot keep up; the event is dropped for this connection only so one slow
// reader never stalls a room.
func (s *WebsocketSink) Consume(ctx context.Context, e event.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case s.Events <- e:
		return nil
	default:
		return errors.ErrSlowConsumer
	}
}
