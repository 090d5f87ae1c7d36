// Package runtime hosts the event router: it validates inbound client
// events, mutates presence and membership, calls persistence, and computes
// the fan-out target of every accepted event. It orchestrates the relay
// without containing transport or storage logic.
package runtime

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	errs "chat-relay/errors"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

type connState int

const (
	stateAnonymous connState = iota
	stateIdentified
)

// connection is the broker-side record of one live transport session.
// Presence and membership only ever reference it by id.
type connection struct {
	id          domain.ConnectionID
	state       connState
	displayName string
	activeRoom  domain.RoomID
	sink        contract.EventSink
}

// Failure reason codes surfaced to the originator of a rejected operation.
const (
	ReasonNotIdentified     = "not_identified"
	ReasonNoRoom            = "no_room"
	ReasonEmptyMessage      = "empty_message"
	ReasonContentTooLong    = "content_too_long"
	ReasonImageTooLarge     = "image_too_large"
	ReasonUnsupportedImage  = "unsupported_image"
	ReasonPersistenceFailed = "persistence_failed"
)

// Broker is the room-scoped event router. Every handler runs as one atomic
// unit under the broker mutex: fan-out targets are always resolved after
// the triggering mutation, and accepted events enter a single ordered
// delivery queue, so broadcast order equals acceptance order.
type Broker struct {
	mu             sync.Mutex
	log            *slog.Logger
	conns          map[domain.ConnectionID]*connection
	presence       *Presence
	membership     *Membership
	repository     contract.IMessageRepository
	sanitizer      contract.ISanitizer
	stats          *observability.Stats
	permanentSinks []contract.EventSink
	queue          chan contract.TargetedEvent

	maxContentLength int
	maxImageBytes    int
}

func NewBroker(log *slog.Logger, presence *Presence, membership *Membership,
	repository contract.IMessageRepository, sanitizer contract.ISanitizer,
	stats *observability.Stats, bufferSize, maxContentLength, maxImageBytes int) *Broker {
	return &Broker{
		log:              log,
		conns:            make(map[domain.ConnectionID]*connection),
		presence:         presence,
		membership:       membership,
		repository:       repository,
		sanitizer:        sanitizer,
		stats:            stats,
		queue:            make(chan contract.TargetedEvent, bufferSize),
		maxContentLength: maxContentLength,
		maxImageBytes:    maxImageBytes,
	}
}

// AddSinks registers permanent sinks that observe every message lifecycle
// event regardless of room, such as the search index.
func (b *Broker) AddSinks(sinks ...contract.EventSink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.permanentSinks = append(b.permanentSinks, sinks...)
}

// Events exposes the ordered delivery queue consumed by the fan-out worker.
func (b *Broker) Events() <-chan contract.TargetedEvent {
	return b.queue
}

// Connect registers a fresh connection in the anonymous state and returns
// its never-reused id.
func (b *Broker) Connect(sink contract.EventSink) domain.ConnectionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := domain.NewConnectionID()
	b.conns[id] = &connection{id: id, state: stateAnonymous, sink: sink}
	b.stats.ConnectionOpened()
	b.log.Debug("Connection registered", "connection_id", id)
	return id
}

// Disconnect runs the cleanup cascade: profile, membership edges and typing
// marks go away, then every room the connection belonged to hears a
// departure notice plus refreshed presence and typing snapshots. It is
// idempotent; a second invocation finds nothing and emits nothing.
func (b *Broker) Disconnect(id domain.ConnectionID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}
	delete(b.conns, id)
	b.stats.ConnectionClosed()

	b.presence.ClearAllTyping(id)
	b.presence.RemoveProfile(id)
	rooms := b.membership.RemoveAll(id)

	if c.state != stateIdentified {
		return
	}
	for _, room := range rooms {
		members := b.membership.MembersOf(room)
		b.emit(b.sinksOf(members), event.UserLeft{
			RoomID:       room,
			ConnectionID: id,
			DisplayName:  c.displayName,
		})
		b.emitPresence(room)
		b.emitTyping(room)
	}
	b.log.Debug("Connection cleaned up", "connection_id", id, "rooms", len(rooms))
}

// Identify attaches a self-asserted display name to the connection. Rooms
// the connection already belongs to receive a refreshed presence snapshot,
// which also covers renames.
func (b *Broker) Identify(id domain.ConnectionID, displayName string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}
	c.state = stateIdentified
	c.displayName = displayName
	b.presence.SetProfile(id, displayName)

	for _, room := range b.membership.RoomsOf(id) {
		b.emitPresence(room)
	}
}

// Join adds the membership edge and replays the room history to the joiner.
// Re-joining still replays history but does not re-announce presence.
// The history fetch happens before the edge is applied so a persistence
// failure leaves membership untouched.
func (b *Broker) Join(id domain.ConnectionID, room domain.RoomID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}
	if c.state != stateIdentified {
		b.fail(c, "join_room", ReasonNotIdentified)
		return
	}

	history, err := b.repository.ListByRoom(room)
	if err != nil {
		b.log.Error("History fetch failed", "room", room, "error", err)
		b.fail(c, "join_room", ReasonPersistenceFailed)
		return
	}

	newly := b.membership.Join(id, room)
	c.activeRoom = room

	b.emit([]contract.EventSink{c.sink}, event.RoomHistory{RoomID: room, Messages: history})
	if newly {
		b.emitPresence(room)
	}
}

// Leave drops one membership edge and refreshes the room for the remaining
// members. Leaving a room the connection never joined is a no-op.
func (b *Broker) Leave(id domain.ConnectionID, room domain.RoomID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}
	if !b.membership.Leave(id, room) {
		return
	}
	b.presence.ClearTyping(id, room)
	if c.activeRoom == room {
		c.activeRoom = ""
	}
	b.emitPresence(room)
	b.emitTyping(room)
}

// Send validates, sanitizes and persists a message, then fans it out to the
// room. The room defaults to the sender's active room. ClientTag is echoed
// back in the fan-out so the sender can swap its optimistic copy for the
// canonical record.
func (b *Broker) Send(id domain.ConnectionID, room domain.RoomID, content string, image []byte, clientTag string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}
	if c.state != stateIdentified {
		b.fail(c, "send_message", ReasonNotIdentified)
		return
	}
	if room == "" {
		room = c.activeRoom
	}
	if room == "" {
		b.fail(c, "send_message", ReasonNoRoom)
		return
	}
	if content == "" && len(image) == 0 {
		b.fail(c, "send_message", ReasonEmptyMessage)
		return
	}
	if len(content) > b.maxContentLength {
		b.fail(c, "send_message", ReasonContentTooLong)
		return
	}

	var img *domain.Image
	if len(image) > 0 {
		if len(image) > b.maxImageBytes {
			b.fail(c, "send_message", ReasonImageTooLarge)
			return
		}
		mtype := mimetype.Detect(image)
		if !strings.HasPrefix(mtype.String(), "image/") {
			b.fail(c, "send_message", ReasonUnsupportedImage)
			return
		}
		img = &domain.Image{Data: image, MIME: mtype.String()}
	}

	clean, lang, _ := b.sanitizer.Sanitize(content)
	message := domain.Message{
		Room:      room,
		Sender:    c.displayName,
		SenderID:  id,
		Content:   clean,
		Image:     img,
		Lang:      lang,
		CreatedAt: time.Now().UTC(),
	}

	assigned, err := b.repository.Append(message)
	if err != nil {
		b.log.Error("Message append failed", "room", room, "error", err)
		b.fail(c, "send_message", ReasonPersistenceFailed)
		return
	}
	message.ID = assigned
	b.stats.MessageRelayed()

	members := b.membership.MembersOf(room)
	b.emit(b.withPermanent(b.sinksOf(members)), event.MessageReceived{Message: message, ClientTag: clientTag})
}

// Edit rewrites a message's content. An unknown id is a benign no-op: it
// may simply have raced a delete.
func (b *Broker) Edit(id domain.ConnectionID, messageID uuid.UUID, content string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}
	if content == "" {
		b.fail(c, "edit_message", ReasonEmptyMessage)
		return
	}
	if len(content) > b.maxContentLength {
		b.fail(c, "edit_message", ReasonContentTooLong)
		return
	}

	clean, _, _ := b.sanitizer.Sanitize(content)
	updated, err := b.repository.UpdateContent(messageID, clean)
	if errors.Is(err, errs.ErrMessageNotFound) {
		b.log.Debug("Edit of unknown message", "message_id", messageID)
		return
	}
	if err != nil {
		b.log.Error("Message update failed", "message_id", messageID, "error", err)
		b.fail(c, "edit_message", ReasonPersistenceFailed)
		return
	}

	members := b.membership.MembersOf(updated.Room)
	b.emit(b.withPermanent(b.sinksOf(members)), event.MessageEdited{Message: updated})
}

// Delete removes a message. Deleting an already-deleted id emits nothing.
func (b *Broker) Delete(id domain.ConnectionID, messageID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}

	message, err := b.repository.Get(messageID)
	if errors.Is(err, errs.ErrMessageNotFound) {
		b.log.Debug("Delete of unknown message", "message_id", messageID)
		return
	}
	if err != nil {
		b.log.Error("Message lookup failed", "message_id", messageID, "error", err)
		b.fail(c, "delete_message", ReasonPersistenceFailed)
		return
	}

	if err := b.repository.Remove(messageID); err != nil {
		if errors.Is(err, errs.ErrMessageNotFound) {
			return
		}
		b.log.Error("Message removal failed", "message_id", messageID, "error", err)
		b.fail(c, "delete_message", ReasonPersistenceFailed)
		return
	}

	members := b.membership.MembersOf(message.Room)
	b.emit(b.withPermanent(b.sinksOf(members)), event.MessageDeleted{RoomID: message.Room, ID: messageID})
}

// React appends an emoji reaction to a message and fans out the updated
// record. Unknown ids are benign no-ops.
func (b *Broker) React(id domain.ConnectionID, messageID uuid.UUID, emoji string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok {
		return
	}

	reaction := domain.Reaction{Emoji: emoji, ReactorID: id}
	updated, err := b.repository.AddReaction(messageID, reaction)
	if errors.Is(err, errs.ErrMessageNotFound) {
		b.log.Debug("Reaction to unknown message", "message_id", messageID)
		return
	}
	if err != nil {
		b.log.Error("Reaction append failed", "message_id", messageID, "error", err)
		b.fail(c, "add_reaction", ReasonPersistenceFailed)
		return
	}

	members := b.membership.MembersOf(updated.Room)
	b.emit(b.withPermanent(b.sinksOf(members)), event.ReactionAdded{Message: updated, Reaction: reaction})
}

// Typing updates the ephemeral typing mark. Only identified members of the
// room may appear in its typing set; anything else is dropped silently.
func (b *Broker) Typing(id domain.ConnectionID, room domain.RoomID, isTyping bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.conns[id]
	if !ok || c.state != stateIdentified {
		return
	}
	if room == "" {
		room = c.activeRoom
	}
	if room == "" || !b.membership.IsMember(id, room) {
		return
	}

	if isTyping {
		b.presence.SetTyping(id, room, c.displayName)
	} else {
		b.presence.ClearTyping(id, room)
	}
	b.emitTyping(room)
}

// Profiles returns every identified connection in join order, for the REST
// surface.
func (b *Broker) Profiles() []domain.Profile {
	return b.presence.Profiles()
}

func (b *Broker) emitPresence(room domain.RoomID) {
	members := b.membership.MembersOf(room)
	b.emit(b.sinksOf(members), event.PresenceSnapshot{
		RoomID:   room,
		Profiles: b.presence.ProfilesAmong(members),
	})
}

func (b *Broker) emitTyping(room domain.RoomID) {
	members := b.membership.MembersOf(room)
	b.emit(b.sinksOf(members), event.TypingSnapshot{
		RoomID: room,
		Names:  b.presence.Typing(room),
	})
}

func (b *Broker) fail(c *connection, action, reason string) {
	b.emit([]contract.EventSink{c.sink}, event.OperationFailed{Action: action, Reason: reason})
}

// emit appends to the delivery queue while still holding the broker mutex,
// which is what pins broadcast order to acceptance order.
func (b *Broker) emit(targets []contract.EventSink, e event.DomainEvent) {
	if len(targets) == 0 {
		return
	}
	b.queue <- contract.TargetedEvent{Targets: targets, Event: e}
	b.stats.EventAccepted()
}

func (b *Broker) sinksOf(members Set) []contract.EventSink {
	sinks := make([]contract.EventSink, 0, len(members))
	for id := range members {
		if c, ok := b.conns[id]; ok {
			sinks = append(sinks, c.sink)
		}
	}
	return sinks
}

func (b *Broker) withPermanent(sinks []contract.EventSink) []contract.EventSink {
	return append(sinks, b.permanentSinks...)
}
