// Package protocol defines the wire contract between clients and the
// broker: a closed set of inbound and outbound event kinds, each with a
// typed payload, dispatched through exhaustive switches. No stringly-typed
// ad-hoc events can leak in or out.
package protocol

import (
	"encoding/json"
	"fmt"

	"chat-relay/errors"

	"github.com/go-playground/validator/v10"
)

// Inbound event kinds (client -> broker).
const (
	TypeIdentify      = "identify"
	TypeJoinRoom      = "join_room"
	TypeLeaveRoom     = "leave_room"
	TypeSendMessage   = "send_message"
	TypeEditMessage   = "edit_message"
	TypeDeleteMessage = "delete_message"
	TypeTyping        = "typing"
	TypeAddReaction   = "add_reaction"
)

// Outbound event kinds (broker -> clients).
const (
	TypePresence       = "presence"
	TypeHistory        = "history"
	TypeNewMessage     = "new_message"
	TypeMessageEdited  = "message_edited"
	TypeMessageDeleted = "message_deleted"
	TypeReactionAdded  = "reaction_added"
	TypeTypingUsers    = "typing_users"
	TypeUserLeft       = "user_left"
	TypeError          = "error"
)

// Envelope is the outer frame of every wire message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is the closed set of decoded client events.
type Inbound interface {
	inbound()
}

type IdentifyPayload struct {
	DisplayName string `json:"display_name" validate:"required,min=1,max=64"`
}

type JoinRoomPayload struct {
	Room string `json:"room" validate:"required,min=1,max=64,excludesall=:"`
}

type LeaveRoomPayload struct {
	Room string `json:"room" validate:"required,min=1,max=64,excludesall=:"`
}

type SendMessagePayload struct {
	Room    string `json:"room,omitempty" validate:"omitempty,max=64,excludesall=:"`
	Content string `json:"content,omitempty"`
	Image   []byte `json:"image,omitempty"`
	Tag     string `json:"tag,omitempty" validate:"omitempty,max=128"`
}

type EditMessagePayload struct {
	ID      string `json:"id" validate:"required,uuid"`
	Content string `json:"content" validate:"required"`
}

type DeleteMessagePayload struct {
	ID string `json:"id" validate:"required,uuid"`
}

type TypingPayload struct {
	Room     string `json:"room,omitempty" validate:"omitempty,max=64,excludesall=:"`
	IsTyping bool   `json:"is_typing"`
}

type AddReactionPayload struct {
	ID    string `json:"id" validate:"required,uuid"`
	Emoji string `json:"emoji" validate:"required,max=16"`
}

func (IdentifyPayload) inbound()      {}
func (JoinRoomPayload) inbound()      {}
func (LeaveRoomPayload) inbound()     {}
func (SendMessagePayload) inbound()   {}
func (EditMessagePayload) inbound()   {}
func (DeleteMessagePayload) inbound() {}
func (TypingPayload) inbound()        {}
func (AddReactionPayload) inbound()   {}

var validate = validator.New()

// Decode parses and validates one client frame. The returned value is
// always one of the payload structs above; an unknown type or a payload
// failing validation is rejected before it can partially apply.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}

	switch env.Type {
	case TypeIdentify:
		return decodePayload[IdentifyPayload](env.Payload)
	case TypeJoinRoom:
		return decodePayload[JoinRoomPayload](env.Payload)
	case TypeLeaveRoom:
		return decodePayload[LeaveRoomPayload](env.Payload)
	case TypeSendMessage:
		return decodePayload[SendMessagePayload](env.Payload)
	case TypeEditMessage:
		return decodePayload[EditMessagePayload](env.Payload)
	case TypeDeleteMessage:
		return decodePayload[DeleteMessagePayload](env.Payload)
	case TypeTyping:
		return decodePayload[TypingPayload](env.Payload)
	case TypeAddReaction:
		return decodePayload[AddReactionPayload](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownEventType, env.Type)
	}
}

func decodePayload[T Inbound](raw json.RawMessage) (Inbound, error) {
	var payload T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("malformed payload: %w", err)
		}
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return payload, nil
}

// ActionOf names the operation a frame was carrying, for error reporting.
func ActionOf(data []byte) string {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		return "unknown"
	}
	return env.Type
}
