//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// initialization or lifecycle events, avoiding the need for manual naming
// in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one delivery target, usually the buffered channel behind a
// websocket connection.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// TargetedEvent pairs an accepted event with the sinks it must reach.
// Targets are resolved by the broker after the triggering mutation, so the
// fan-out worker never reads shared state.
type TargetedEvent struct {
	Targets []EventSink
	Event   event.DomainEvent
}

// IMessageRepository is the persistence port: an append-only message log
// with lookup by room, in-place update, and delete. Implementations assign
// the message id at append time.
type IMessageRepository interface {
	Append(message domain.Message) (uuid.UUID, error)
	Get(id uuid.UUID) (domain.Message, error)
	ListByRoom(room domain.RoomID) ([]domain.Message, error)
	UpdateContent(id uuid.UUID, content string) (domain.Message, error)
	Remove(id uuid.UUID) error
	AddReaction(id uuid.UUID, reaction domain.Reaction) (domain.Message, error)
}

// ISanitizer cleans message content before it is persisted or fanned out.
type ISanitizer interface {
	Sanitize(content string) (clean string, lang string, censored []string)
}

// ISearchIndex is the full-text index over the message log.
type ISearchIndex interface {
	EventSink
	Search(ctx context.Context, room domain.RoomID, query string, limit int) ([]uuid.UUID, error)
}
