// Package search maintains a full-text index over the message log so the
// query surface can answer content searches without scanning BadgerDB.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

// MessageIndex is an EventSink fed by the fan-out pipeline: every accepted
// message mutation is mirrored into a Bluge index keyed by message id.
type MessageIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (i *MessageIndex) Close() error {
	return i.writer.Close()
}

// Consume mirrors message lifecycle events into the index. Events it does
// not care about are ignored.
func (i *MessageIndex) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageReceived:
		return i.index(evt.Message)
	case event.MessageEdited:
		return i.index(evt.Message)
	case event.MessageDeleted:
		doc := bluge.NewDocument(evt.ID.String())
		return i.writer.Delete(doc.ID())
	default:
		return nil
	}
}

func (i *MessageIndex) index(message domain.Message) error {
	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("room", string(message.Room))).
		AddField(bluge.NewTextField("sender", message.Sender)).
		AddField(bluge.NewTextField("content", message.Content))
	return i.writer.Update(doc.ID(), doc)
}

// Search returns the ids of messages in a room matching the query, best
// match first. Callers resolve ids against the message repository so the
// index never stores message bodies twice.
func (i *MessageIndex) Search(ctx context.Context, room domain.RoomID, query string, limit int) ([]uuid.UUID, error) {
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() { _ = reader.Close() }()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(string(room)).SetField("room")).
		AddMust(bluge.NewMatchQuery(query).SetField("content"))

	it, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	match, err := it.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field != "_id" {
				return true
			}
			id, parseErr := uuid.Parse(string(value))
			if parseErr != nil {
				i.log.Warn("Skipping index entry with malformed id", "raw", string(value))
				return true
			}
			ids = append(ids, id)
			return true
		})
		if visitErr != nil {
			return nil, visitErr
		}
		match, err = it.Next()
	}
	if err != nil {
		return nil, err
	}
	return ids, nil
}
