// Package server exposes the relay over HTTP: the websocket endpoint that
// carries the realtime protocol and a small read-only REST surface.
package server

import (
	"context"
	"net/http"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/protocol"
	"chat-relay/sink"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxFrameBytes = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The relay has no cross-origin story of its own; deployments put it
	// behind a gateway that enforces one.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleWebsocket upgrades the request and runs the two pumps for the life
// of the connection. Both pumps call Disconnect on the way out; the broker
// cascade is idempotent so the double call is harmless.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("Websocket upgrade failed", "error", err)
		return
	}

	clientSink := sink.NewWebsocketSink(s.connectionBuffer)
	id := s.broker.Connect(clientSink)
	s.log.Info("Client connected", "connection_id", id, "remote", r.RemoteAddr)

	go s.writePump(conn, clientSink, id)
	s.readPump(conn, clientSink, id)
}

func (s *Server) readPump(conn *websocket.Conn, clientSink *sink.WebsocketSink, id domain.ConnectionID) {
	defer func() {
		s.broker.Disconnect(id)
		conn.Close()
		s.log.Info("Client disconnected", "connection_id", id)
	}()

	conn.SetReadLimit(maxFrameBytes)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Unexpected close", "connection_id", id, "error", err)
			}
			return
		}
		s.dispatch(clientSink, id, data)
	}
}

// dispatch decodes one frame and routes it to the matching broker
// operation. A malformed frame only answers its own sender.
func (s *Server) dispatch(clientSink *sink.WebsocketSink, id domain.ConnectionID, data []byte) {
	in, err := protocol.Decode(data)
	if err != nil {
		s.log.Debug("Rejected frame", "connection_id", id, "error", err)
		s.reject(clientSink, protocol.ActionOf(data), "invalid_payload")
		return
	}

	switch p := in.(type) {
	case protocol.IdentifyPayload:
		s.broker.Identify(id, p.DisplayName)
	case protocol.JoinRoomPayload:
		s.broker.Join(id, domain.RoomID(p.Room))
	case protocol.LeaveRoomPayload:
		s.broker.Leave(id, domain.RoomID(p.Room))
	case protocol.SendMessagePayload:
		s.broker.Send(id, domain.RoomID(p.Room), p.Content, p.Image, p.Tag)
	case protocol.EditMessagePayload:
		s.broker.Edit(id, uuid.MustParse(p.ID), p.Content)
	case protocol.DeleteMessagePayload:
		s.broker.Delete(id, uuid.MustParse(p.ID))
	case protocol.TypingPayload:
		s.broker.Typing(id, domain.RoomID(p.Room), p.IsTyping)
	case protocol.AddReactionPayload:
		s.broker.React(id, uuid.MustParse(p.ID), p.Emoji)
	}
}

// reject answers a protocol-level error straight into the connection's own
// sink, skipping the broker queue: the frame never became an accepted event.
func (s *Server) reject(clientSink *sink.WebsocketSink, action, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	_ = clientSink.Consume(ctx, event.OperationFailed{Action: action, Reason: reason})
}

func (s *Server) writePump(conn *websocket.Conn, clientSink *sink.WebsocketSink, id domain.ConnectionID) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.broker.Disconnect(id)
		conn.Close()
	}()

	for {
		select {
		case e := <-clientSink.Events:
			data, err := protocol.Encode(e)
			if err != nil {
				s.log.Error("Event encoding failed", "connection_id", id, "error", err)
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
