package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"

	"github.com/samber/lo"
)

// WireMessage is the JSON shape of a chat message on the wire and in the
// REST surface.
type WireMessage struct {
	ID        string         `json:"id"`
	Room      string         `json:"room"`
	Sender    string         `json:"sender"`
	SenderID  string         `json:"sender_id"`
	Content   string         `json:"content,omitempty"`
	Image     *WireImage     `json:"image,omitempty"`
	Lang      string         `json:"lang,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	Edited    bool           `json:"edited,omitempty"`
	Reactions []WireReaction `json:"reactions,omitempty"`
}

type WireImage struct {
	Data []byte `json:"data"`
	MIME string `json:"mime"`
}

type WireReaction struct {
	Emoji     string `json:"emoji"`
	ReactorID string `json:"reactor_id"`
}

type WireProfile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type presenceBody struct {
	Room  string        `json:"room"`
	Users []WireProfile `json:"users"`
}

type historyBody struct {
	Room     string        `json:"room"`
	Messages []WireMessage `json:"messages"`
}

type newMessageBody struct {
	Message WireMessage `json:"message"`
	Tag     string      `json:"tag,omitempty"`
}

type messageEditedBody struct {
	ID      string `json:"id"`
	Room    string `json:"room"`
	Content string `json:"content"`
	Edited  bool   `json:"edited"`
}

type messageDeletedBody struct {
	ID   string `json:"id"`
	Room string `json:"room"`
}

type reactionAddedBody struct {
	ID        string         `json:"id"`
	Room      string         `json:"room"`
	Emoji     string         `json:"emoji"`
	ReactorID string         `json:"reactor_id"`
	Reactions []WireReaction `json:"reactions"`
}

type typingBody struct {
	Room  string   `json:"room"`
	Users []string `json:"users"`
}

type userLeftBody struct {
	Room        string `json:"room"`
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type errorBody struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// ToWireMessage converts a domain message to its wire shape.
func ToWireMessage(m domain.Message) WireMessage {
	wire := WireMessage{
		ID:        m.ID.String(),
		Room:      string(m.Room),
		Sender:    m.Sender,
		SenderID:  string(m.SenderID),
		Content:   m.Content,
		Lang:      m.Lang,
		CreatedAt: m.CreatedAt,
		Edited:    m.Edited,
	}
	if m.Image != nil {
		wire.Image = &WireImage{Data: m.Image.Data, MIME: m.Image.MIME}
	}
	if len(m.Reactions) > 0 {
		wire.Reactions = lo.Map(m.Reactions, func(r domain.Reaction, _ int) WireReaction {
			return WireReaction{Emoji: r.Emoji, ReactorID: string(r.ReactorID)}
		})
	}
	return wire
}

// Encode serializes one broker event into a wire frame.
func Encode(e event.DomainEvent) ([]byte, error) {
	var env Envelope

	switch ev := e.(type) {
	case event.PresenceSnapshot:
		env.Type = TypePresence
		return marshal(env, presenceBody{
			Room: string(ev.RoomID),
			Users: lo.Map(ev.Profiles, func(p domain.Profile, _ int) WireProfile {
				return WireProfile{ID: string(p.ConnectionID), DisplayName: p.DisplayName}
			}),
		})
	case event.RoomHistory:
		env.Type = TypeHistory
		return marshal(env, historyBody{
			Room:     string(ev.RoomID),
			Messages: lo.Map(ev.Messages, func(m domain.Message, _ int) WireMessage { return ToWireMessage(m) }),
		})
	case event.MessageReceived:
		env.Type = TypeNewMessage
		return marshal(env, newMessageBody{Message: ToWireMessage(ev.Message), Tag: ev.ClientTag})
	case event.MessageEdited:
		env.Type = TypeMessageEdited
		return marshal(env, messageEditedBody{
			ID:      ev.Message.ID.String(),
			Room:    string(ev.Message.Room),
			Content: ev.Message.Content,
			Edited:  true,
		})
	case event.MessageDeleted:
		env.Type = TypeMessageDeleted
		return marshal(env, messageDeletedBody{ID: ev.ID.String(), Room: string(ev.RoomID)})
	case event.ReactionAdded:
		env.Type = TypeReactionAdded
		return marshal(env, reactionAddedBody{
			ID:        ev.Message.ID.String(),
			Room:      string(ev.Message.Room),
			Emoji:     ev.Reaction.Emoji,
			ReactorID: string(ev.Reaction.ReactorID),
			Reactions: lo.Map(ev.Message.Reactions, func(r domain.Reaction, _ int) WireReaction {
				return WireReaction{Emoji: r.Emoji, ReactorID: string(r.ReactorID)}
			}),
		})
	case event.TypingSnapshot:
		env.Type = TypeTypingUsers
		users := ev.Names
		if users == nil {
			users = []string{}
		}
		return marshal(env, typingBody{Room: string(ev.RoomID), Users: users})
	case event.UserLeft:
		env.Type = TypeUserLeft
		return marshal(env, userLeftBody{
			Room:        string(ev.RoomID),
			ID:          string(ev.ConnectionID),
			DisplayName: ev.DisplayName,
		})
	case event.OperationFailed:
		env.Type = TypeError
		return marshal(env, errorBody{Action: ev.Action, Reason: ev.Reason})
	default:
		return nil, fmt.Errorf("%w: %T", errors.ErrUnknownEventType, e)
	}
}

func marshal(env Envelope, body any) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", env.Type, err)
	}
	env.Payload = raw
	return json.Marshal(env)
}
