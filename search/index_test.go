package search

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMessage(room domain.RoomID, content string) domain.Message {
	return domain.Message{
		ID:        uuid.New(),
		Room:      room,
		Sender:    "alice",
		SenderID:  "c1",
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

func Test_Search_Is_Scoped_To_Room(t *testing.T) {
	req := require.New(t)
	index, err := NewMessageIndex(t.TempDir(), slog.Default())
	req.NoError(err)
	defer index.Close()

	ctx := context.Background()
	inGeneral := newMessage("general", "deployment broke again")
	inRandom := newMessage("random", "deployment party tonight")

	req.NoError(index.Consume(ctx, event.MessageReceived{Message: inGeneral}))
	req.NoError(index.Consume(ctx, event.MessageReceived{Message: inRandom}))

	ids, err := index.Search(ctx, "general", "deployment", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{inGeneral.ID}, ids)
}

func Test_Search_Follows_Edits_And_Deletes(t *testing.T) {
	req := require.New(t)
	index, err := NewMessageIndex(t.TempDir(), slog.Default())
	req.NoError(err)
	defer index.Close()

	ctx := context.Background()
	msg := newMessage("general", "original wording")
	req.NoError(index.Consume(ctx, event.MessageReceived{Message: msg}))

	edited := msg
	edited.Content = "completely different words"
	edited.Edited = true
	req.NoError(index.Consume(ctx, event.MessageEdited{Message: edited}))

	ids, err := index.Search(ctx, "general", "original", 10)
	req.NoError(err)
	req.Empty(ids)

	ids, err = index.Search(ctx, "general", "different", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{msg.ID}, ids)

	req.NoError(index.Consume(ctx, event.MessageDeleted{RoomID: "general", ID: msg.ID}))
	ids, err = index.Search(ctx, "general", "different", 10)
	req.NoError(err)
	req.Empty(ids)
}
