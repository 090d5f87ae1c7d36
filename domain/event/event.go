package event

import (
	"chat-relay/domain"

	"github.com/google/uuid"
)

// DomainEvent is the closed set of broker outputs. Room returns the room the
// event is scoped to, or "" for events addressed to a single connection.
type DomainEvent interface {
	Room() domain.RoomID
}

// PresenceSnapshot lists the identified members of a room in join order.
// Emitted whenever membership or identity changes inside the room.
type PresenceSnapshot struct {
	RoomID   domain.RoomID
	Profiles []domain.Profile
}

func (e PresenceSnapshot) Room() domain.RoomID { return e.RoomID }

// RoomHistory replays the persisted tail of a room, oldest first.
// Sent only to a joining connection.
type RoomHistory struct {
	RoomID   domain.RoomID
	Messages []domain.Message
}

func (e RoomHistory) Room() domain.RoomID { return e.RoomID }

// MessageReceived carries a newly persisted message. ClientTag echoes the
// sender's correlation token so its optimistic copy can be reconciled.
type MessageReceived struct {
	Message   domain.Message
	ClientTag string
}

func (e MessageReceived) Room() domain.RoomID { return e.Message.Room }

// MessageEdited carries the full updated message after an edit was persisted.
type MessageEdited struct {
	Message domain.Message
}

func (e MessageEdited) Room() domain.RoomID { return e.Message.Room }

// MessageDeleted announces that a message id no longer exists in a room.
type MessageDeleted struct {
	RoomID domain.RoomID
	ID     uuid.UUID
}

func (e MessageDeleted) Room() domain.RoomID { return e.RoomID }

// ReactionAdded carries the message after a reaction was appended, plus the
// reaction itself for clients that patch in place.
type ReactionAdded struct {
	Message  domain.Message
	Reaction domain.Reaction
}

func (e ReactionAdded) Room() domain.RoomID { return e.Message.Room }

// TypingSnapshot lists the display names currently typing in a room.
type TypingSnapshot struct {
	RoomID domain.RoomID
	Names  []string
}

func (e TypingSnapshot) Room() domain.RoomID { return e.RoomID }

// UserLeft announces the departure of an identified connection from a room.
type UserLeft struct {
	RoomID       domain.RoomID
	ConnectionID domain.ConnectionID
	DisplayName  string
}

func (e UserLeft) Room() domain.RoomID { return e.RoomID }

// OperationFailed reports a rejected or failed operation to its originator
// only. It never fans out.
type OperationFailed struct {
	Action string
	Reason string
}

func (e OperationFailed) Room() domain.RoomID { return "" }
