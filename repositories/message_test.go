package repositories

import (
	"log/slog"
	"testing"
	"time"

	errs "chat-relay/errors"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Append_And_List_Sorted_Messages(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	room := domain.RoomID("general")
	at := time.Now().UTC().Truncate(time.Nanosecond)

	inputs := []domain.Message{
		{Room: room, Sender: "Alice", SenderID: "c1", Content: "first", CreatedAt: at},
		{Room: room, Sender: "Bob", SenderID: "c2", Content: "second", CreatedAt: at.Add(1 * time.Minute)},
		{Room: room, Sender: "Clara", SenderID: "c3", Content: "third", CreatedAt: at.Add(2 * time.Minute)},
	}
	for _, msg := range inputs {
		id, err := repository.Append(msg)
		req.NoError(err)
		req.NotEqual(uuid.Nil, id)
	}

	fetched, err := repository.ListByRoom(room)
	req.NoError(err)
	req.Len(fetched, len(inputs))

	// Oldest first, ids assigned by the repository
	req.Equal("first", fetched[0].Content)
	req.Equal("second", fetched[1].Content)
	req.Equal("third", fetched[2].Content)
	req.Equal(inputs[0].CreatedAt, fetched[0].CreatedAt)
	req.Equal("Alice", fetched[0].Sender)
	req.Equal(domain.ConnectionID("c1"), fetched[0].SenderID)
}

func Test_List_Is_Scoped_To_Room(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	at := time.Now().UTC()

	_, err := repository.Append(domain.Message{Room: "general", Sender: "Alice", Content: "in general", CreatedAt: at})
	req.NoError(err)
	_, err = repository.Append(domain.Message{Room: "random", Sender: "Bob", Content: "in random", CreatedAt: at})
	req.NoError(err)

	fetched, err := repository.ListByRoom("general")
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal("in general", fetched[0].Content)

	fetched, err = repository.ListByRoom("empty-room")
	req.NoError(err)
	req.Empty(fetched)
}

func Test_List_Keeps_Most_Recent_When_Limited(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	limit := 2
	repository := NewMessageRepository(db, slog.Default(), &limit)
	room := domain.RoomID("general")
	at := time.Now().UTC()

	for i, content := range []string{"oldest", "middle", "newest"} {
		_, err := repository.Append(domain.Message{
			Room: room, Sender: "Alice", Content: content,
			CreatedAt: at.Add(time.Duration(i) * time.Minute),
		})
		req.NoError(err)
	}

	fetched, err := repository.ListByRoom(room)
	req.NoError(err)
	req.Len(fetched, limit)
	// The bound drops the oldest entries, not the newest
	req.Equal("middle", fetched[0].Content)
	req.Equal("newest", fetched[1].Content)
}

func Test_UpdateContent_Sets_Edited_Flag(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	id, err := repository.Append(domain.Message{
		Room: "general", Sender: "Alice", Content: "hi", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	updated, err := repository.UpdateContent(id, "hi there")
	req.NoError(err)
	req.Equal("hi there", updated.Content)
	req.True(updated.Edited)

	fetched, err := repository.Get(id)
	req.NoError(err)
	req.Equal("hi there", fetched.Content)
	req.True(fetched.Edited)

	listed, err := repository.ListByRoom("general")
	req.NoError(err)
	req.Len(listed, 1)
	req.Equal("hi there", listed[0].Content)
}

func Test_UpdateContent_Unknown_Id(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	_, err := repository.UpdateContent(uuid.New(), "whatever")
	req.ErrorIs(err, errs.ErrMessageNotFound)
}

func Test_Remove_Then_Get_Reports_Not_Found(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	id, err := repository.Append(domain.Message{
		Room: "general", Sender: "Alice", Content: "ephemeral", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	req.NoError(repository.Remove(id))

	_, err = repository.Get(id)
	req.ErrorIs(err, errs.ErrMessageNotFound)

	// Second removal races are benign by contract
	req.ErrorIs(repository.Remove(id), errs.ErrMessageNotFound)

	listed, err := repository.ListByRoom("general")
	req.NoError(err)
	req.Empty(listed)
}

func Test_AddReaction_Appends_In_Order(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	id, err := repository.Append(domain.Message{
		Room: "general", Sender: "Alice", Content: "react to me", CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	_, err = repository.AddReaction(id, domain.Reaction{Emoji: "👍", ReactorID: "c2"})
	req.NoError(err)
	updated, err := repository.AddReaction(id, domain.Reaction{Emoji: "🔥", ReactorID: "c3"})
	req.NoError(err)

	req.Equal([]domain.Reaction{
		{Emoji: "👍", ReactorID: "c2"},
		{Emoji: "🔥", ReactorID: "c3"},
	}, updated.Reactions)
}

func Test_Image_Payload_Roundtrip(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)

	repository := NewMessageRepository(db, slog.Default(), nil)
	payload := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	id, err := repository.Append(domain.Message{
		Room: "general", Sender: "Alice", Content: "look",
		Image:     &domain.Image{Data: payload, MIME: "image/png"},
		CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)

	fetched, err := repository.Get(id)
	req.NoError(err)
	req.NotNil(fetched.Image)
	req.Equal(payload, fetched.Image.Data)
	req.Equal("image/png", fetched.Image.MIME)
}
