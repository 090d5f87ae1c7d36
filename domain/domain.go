// Package domain contains core concepts of the chat relay.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionID identifies one live transport session. It is assigned at
// connect time and never reused after the connection goes away.
type ConnectionID string

// NewConnectionID allocates a fresh unique connection identifier.
func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}

// RoomID is the name of a logical channel. A room is never created or
// destroyed explicitly: it exists as long as at least one connection is a
// member, or as a historical key in the message log.
type RoomID string

// Profile is the self-asserted identity of a live connection.
// One profile per connection, destroyed on disconnect.
type Profile struct {
	ConnectionID ConnectionID
	DisplayName  string
}

// Reaction is a single emoji reaction attached to a message.
type Reaction struct {
	Emoji     string
	ReactorID ConnectionID
}

// Image is an optional binary payload attached to a message. MIME is the
// sniffed content type, never the one claimed by the client.
type Image struct {
	Data []byte
	MIME string
}

// Message is a chat event as persisted and fanned out. SenderID stays valid
// as a historical attribution after the sender disconnects.
type Message struct {
	ID        uuid.UUID
	Room      RoomID
	Sender    string
	SenderID  ConnectionID
	Content   string
	Image     *Image
	Lang      string
	CreatedAt time.Time
	Edited    bool
	Reactions []Reaction
}
