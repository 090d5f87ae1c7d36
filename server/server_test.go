package server_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/protocol"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/server"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelError)

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	repository := repositories.NewMessageRepository(db, log, nil)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*', log)
	req.NoError(err)
	sanitizer := moderation.NewSanitizer(moderator, log)
	stats := observability.NewStats(log)

	index, err := search.NewMessageIndex(t.TempDir(), log)
	req.NoError(err)
	t.Cleanup(func() { _ = index.Close() })

	broker := runtime.NewBroker(log, runtime.NewPresence(), runtime.NewMembership(),
		repository, sanitizer, stats, 256, 2000, 1<<20)
	broker.AddSinks(index)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	fanout := workers.NewEventFanout(log, broker.Events(), time.Second, stats)
	go func() { _ = fanout.Run(ctx) }()

	srv := server.New(log, broker, repository, index, stats, 64)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func dialClient(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	req := require.New(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	req := require.New(t)
	raw, err := json.Marshal(payload)
	req.NoError(err)
	env := protocol.Envelope{Type: eventType, Payload: raw}
	data, err := json.Marshal(env)
	req.NoError(err)
	req.NoError(conn.WriteMessage(websocket.TextMessage, data))
}

// waitFor reads frames until one of the wanted type arrives, skipping any
// others. Interleaved presence and typing snapshots make exact frame
// sequences brittle.
func waitFor(t *testing.T, conn *websocket.Conn, eventType string) json.RawMessage {
	t.Helper()
	req := require.New(t)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req.NoError(conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
		_, data, err := conn.ReadMessage()
		req.NoError(err)
		var env protocol.Envelope
		req.NoError(json.Unmarshal(data, &env))
		if env.Type == eventType {
			return env.Payload
		}
	}
	t.Fatalf("no %q frame arrived in time", eventType)
	return nil
}

func Test_Join_Replays_History_And_Announces_Presence(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	conn := dialClient(t, ts)

	send(t, conn, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "alice"})
	send(t, conn, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "general"})

	var history struct {
		Room     string                 `json:"room"`
		Messages []protocol.WireMessage `json:"messages"`
	}
	req.NoError(json.Unmarshal(waitFor(t, conn, protocol.TypeHistory), &history))
	req.Equal("general", history.Room)
	req.Empty(history.Messages)

	var presence struct {
		Room  string                 `json:"room"`
		Users []protocol.WireProfile `json:"users"`
	}
	req.NoError(json.Unmarshal(waitFor(t, conn, protocol.TypePresence), &presence))
	req.Len(presence.Users, 1)
	req.Equal("alice", presence.Users[0].DisplayName)
}

func Test_Message_Fans_Out_To_Room_Members_With_Tag(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := dialClient(t, ts)
	send(t, alice, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "alice"})
	send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "general"})
	waitFor(t, alice, protocol.TypeHistory)

	bob := dialClient(t, ts)
	send(t, bob, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "bob"})
	send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "general"})
	waitFor(t, bob, protocol.TypeHistory)

	send(t, alice, protocol.TypeSendMessage, protocol.SendMessagePayload{Content: "hello badger", Tag: "c-1"})

	var got struct {
		Message protocol.WireMessage `json:"message"`
		Tag     string               `json:"tag"`
	}
	req.NoError(json.Unmarshal(waitFor(t, bob, protocol.TypeNewMessage), &got))
	req.Equal("alice", got.Message.Sender)
	req.Equal("hello ******", got.Message.Content)
	req.Equal("general", got.Message.Room)

	req.NoError(json.Unmarshal(waitFor(t, alice, protocol.TypeNewMessage), &got))
	req.Equal("c-1", got.Tag)
	req.NotEmpty(got.Message.ID)
}

func Test_Message_Does_Not_Reach_Other_Rooms(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := dialClient(t, ts)
	send(t, alice, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "alice"})
	send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "general"})
	waitFor(t, alice, protocol.TypeHistory)

	carol := dialClient(t, ts)
	send(t, carol, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "carol"})
	send(t, carol, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "random"})
	waitFor(t, carol, protocol.TypeHistory)

	send(t, alice, protocol.TypeSendMessage, protocol.SendMessagePayload{Content: "private to general"})
	waitFor(t, alice, protocol.TypeNewMessage)

	req.NoError(carol.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	for {
		_, data, err := carol.ReadMessage()
		if err != nil {
			break
		}
		var env protocol.Envelope
		req.NoError(json.Unmarshal(data, &env))
		req.NotEqual(protocol.TypeNewMessage, env.Type)
	}
}

func Test_Send_Before_Identify_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)
	conn := dialClient(t, ts)

	send(t, conn, protocol.TypeSendMessage, protocol.SendMessagePayload{Room: "general", Content: "hi"})

	var failure struct {
		Action string `json:"action"`
		Reason string `json:"reason"`
	}
	req.NoError(json.Unmarshal(waitFor(t, conn, protocol.TypeError), &failure))
	req.Equal("send_message", failure.Action)
	req.Equal(runtime.ReasonNotIdentified, failure.Reason)
}

func Test_Disconnect_Notifies_Remaining_Members(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	alice := dialClient(t, ts)
	send(t, alice, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "alice"})
	send(t, alice, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "general"})
	waitFor(t, alice, protocol.TypeHistory)

	bob := dialClient(t, ts)
	send(t, bob, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "bob"})
	send(t, bob, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "general"})
	waitFor(t, bob, protocol.TypeHistory)

	req.NoError(bob.Close())

	var left struct {
		Room        string `json:"room"`
		DisplayName string `json:"display_name"`
	}
	req.NoError(json.Unmarshal(waitFor(t, alice, protocol.TypeUserLeft), &left))
	req.Equal("general", left.Room)
	req.Equal("bob", left.DisplayName)
}

func Test_Rest_History_And_Health(t *testing.T) {
	req := require.New(t)
	ts := newTestServer(t)

	conn := dialClient(t, ts)
	send(t, conn, protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: "alice"})
	send(t, conn, protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: "general"})
	waitFor(t, conn, protocol.TypeHistory)
	send(t, conn, protocol.TypeSendMessage, protocol.SendMessagePayload{Content: "for the record"})
	waitFor(t, conn, protocol.TypeNewMessage)

	resp, err := http.Get(ts.URL + "/messages/general")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)
	var messages []protocol.WireMessage
	req.NoError(json.NewDecoder(resp.Body).Decode(&messages))
	req.Len(messages, 1)
	req.Equal("for the record", messages[0].Content)

	health, err := http.Get(ts.URL + "/healthz")
	req.NoError(err)
	defer health.Body.Close()
	req.Equal(http.StatusOK, health.StatusCode)
}
