package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	errs "chat-relay/errors"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MessageRepository persists messages in BadgerDB.
//
// The primary key is "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order) within a room prefix.
//  2. Prevent data loss by using UUID as a collision disconnector if two
//     messages arrive at the same nanosecond.
//
// A secondary index "msgid:{uuid}" -> primary key supports the edit, delete
// and reaction paths, which only know the message id.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type storedReaction struct {
	Emoji     string `json:"emoji"`
	ReactorID string `json:"reactor_id"`
}

type storedMessage struct {
	ID        string           `json:"id"`
	Room      string           `json:"room"`
	Sender    string           `json:"sender"`
	SenderID  string           `json:"sender_id"`
	Content   string           `json:"content"`
	ImageData []byte           `json:"image_data,omitempty"`
	ImageMIME string           `json:"image_mime,omitempty"`
	Lang      string           `json:"lang,omitempty"`
	At        int64            `json:"at"`
	Edited    bool             `json:"edited,omitempty"`
	Reactions []storedReaction `json:"reactions,omitempty"`
}

func primaryKey(room domain.RoomID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", room, at.UnixNano(), id))
}

func indexKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

// Append stores a new message and assigns its identity. The returned id is
// the one all later edit/delete/reaction events must reference.
func (m MessageRepository) Append(message domain.Message) (uuid.UUID, error) {
	id := uuid.New()
	message.ID = id

	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return uuid.Nil, err
	}

	key := primaryKey(message.Room, message.CreatedAt, id)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(id), key)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// Get resolves a message by id through the secondary index.
func (m MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		stored, _, err := m.load(txn, id)
		if err != nil {
			return err
		}
		message, err = toMessage(stored)
		return err
	})
	return message, err
}

// ListByRoom retrieves the most recent messages of a room, returned oldest
// first. Thanks to the padded timestamp in the key, a reverse prefix scan
// yields the newest entries; the slice is flipped before returning so
// callers replay history in reading order.
func (m MessageRepository) ListByRoom(room domain.RoomID) ([]domain.Message, error) {
	var byteMessages [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", room)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible key of the prefix, then walk back.
		seekKey := append([]byte(prefixStr), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			err := it.Item().Value(func(value []byte) error {
				byteMessages = append(byteMessages, value)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(byteMessages))
	for i := len(byteMessages) - 1; i >= 0; i-- {
		var stored storedMessage
		if err = json.Unmarshal(byteMessages[i], &stored); err != nil {
			return nil, err
		}
		message, err := toMessage(stored)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// UpdateContent replaces a message's content and flags it as edited.
// Returns ErrMessageNotFound when the id is unknown (possibly already
// deleted), which callers treat as benign.
func (m MessageRepository) UpdateContent(id uuid.UUID, content string) (domain.Message, error) {
	return m.mutate(id, func(stored *storedMessage) {
		stored.Content = content
		stored.Edited = true
	})
}

// AddReaction appends one reaction to a message.
func (m MessageRepository) AddReaction(id uuid.UUID, reaction domain.Reaction) (domain.Message, error) {
	return m.mutate(id, func(stored *storedMessage) {
		stored.Reactions = append(stored.Reactions, storedReaction{
			Emoji:     reaction.Emoji,
			ReactorID: string(reaction.ReactorID),
		})
	})
}

// Remove deletes a message and its index entry. A missing id reports
// ErrMessageNotFound so the broker can treat it as already deleted.
func (m MessageRepository) Remove(id uuid.UUID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		_, key, err := m.load(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
}

func (m MessageRepository) mutate(id uuid.UUID, apply func(*storedMessage)) (domain.Message, error) {
	var message domain.Message
	err := m.db.Update(func(txn *badger.Txn) error {
		stored, key, err := m.load(txn, id)
		if err != nil {
			return err
		}
		apply(&stored)
		bytes, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		message, err = toMessage(stored)
		return err
	})
	return message, err
}

// load follows the id index to the primary record inside a transaction.
func (m MessageRepository) load(txn *badger.Txn, id uuid.UUID) (storedMessage, []byte, error) {
	var stored storedMessage
	item, err := txn.Get(indexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return stored, nil, errs.ErrMessageNotFound
	}
	if err != nil {
		return stored, nil, err
	}

	key, err := item.ValueCopy(nil)
	if err != nil {
		return stored, nil, err
	}

	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return stored, nil, errs.ErrMessageNotFound
	}
	if err != nil {
		return stored, nil, err
	}

	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &stored)
	})
	return stored, key, err
}

func fromMessage(message domain.Message) storedMessage {
	stored := storedMessage{
		ID:       message.ID.String(),
		Room:     string(message.Room),
		Sender:   message.Sender,
		SenderID: string(message.SenderID),
		Content:  message.Content,
		Lang:     message.Lang,
		At:       message.CreatedAt.UnixNano(),
		Edited:   message.Edited,
	}
	if len(message.Reactions) > 0 {
		stored.Reactions = lo.Map(message.Reactions, func(r domain.Reaction, _ int) storedReaction {
			return storedReaction{Emoji: r.Emoji, ReactorID: string(r.ReactorID)}
		})
	}
	if message.Image != nil {
		stored.ImageData = message.Image.Data
		stored.ImageMIME = message.Image.MIME
	}
	return stored
}

func toMessage(stored storedMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.Message{}, err
	}

	message := domain.Message{
		ID:        parsedID,
		Room:      domain.RoomID(stored.Room),
		Sender:    stored.Sender,
		SenderID:  domain.ConnectionID(stored.SenderID),
		Content:   stored.Content,
		Lang:      stored.Lang,
		CreatedAt: time.Unix(0, stored.At).UTC(),
		Edited:    stored.Edited,
	}
	if len(stored.Reactions) > 0 {
		message.Reactions = lo.Map(stored.Reactions, func(r storedReaction, _ int) domain.Reaction {
			return domain.Reaction{Emoji: r.Emoji, ReactorID: domain.ConnectionID(r.ReactorID)}
		})
	}
	if len(stored.ImageData) > 0 {
		message.Image = &domain.Image{Data: stored.ImageData, MIME: stored.ImageMIME}
	}
	return message, nil
}
