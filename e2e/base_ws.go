package e2e

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"chat-relay/protocol"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
)

type BaseWsSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseWsSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.RelayAddr == "" {
		s.T().Skip("RELAY_ADDR not set, skipping live scenarios")
	}
}

// Client is one scripted websocket participant with frame-level logging.
type Client struct {
	suite *BaseWsSuite
	t     *testing.T
	name  string
	conn  *websocket.Conn
}

// Dial opens a websocket client against the configured relay, with a
// colorized header in the test log.
func (s *BaseWsSuite) Dial(t *testing.T, name string) *Client {
	header := fmt.Sprintf("  ====== %s connects ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	t.Log(header)

	url := fmt.Sprintf("ws://%s/ws", s.Config.RelayAddr)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	t.Cleanup(func() { _ = conn.Close() })
	return &Client{suite: s, t: t, name: name, conn: conn}
}

func (c *Client) Send(eventType string, payload any) {
	raw, err := json.Marshal(payload)
	c.suite.Require().NoError(err)
	data, err := json.Marshal(protocol.Envelope{Type: eventType, Payload: raw})
	c.suite.Require().NoError(err)

	if c.suite.Config.DebugJSON {
		c.t.Logf("%s >> %s", c.name, data)
	}
	c.suite.Require().NoError(c.conn.WriteMessage(websocket.TextMessage, data))
}

// WaitFor reads frames until one of the wanted type arrives, skipping any
// interleaved presence or typing traffic.
func (c *Client) WaitFor(eventType string) json.RawMessage {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.suite.Require().NoError(c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)))
		_, data, err := c.conn.ReadMessage()
		c.suite.Require().NoError(err)

		if c.suite.Config.DebugJSON {
			c.t.Logf("%s << %s", c.name, data)
		}

		var env protocol.Envelope
		c.suite.Require().NoError(json.Unmarshal(data, &env))
		if env.Type == eventType {
			return env.Payload
		}
	}
	c.suite.Require().Failf("timeout", "%s never received a %q frame", c.name, eventType)
	return nil
}

func (c *Client) Identify(displayName string) {
	c.Send(protocol.TypeIdentify, protocol.IdentifyPayload{DisplayName: displayName})
}

func (c *Client) Join(room string) {
	c.Send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{Room: room})
	c.WaitFor(protocol.TypeHistory)
}
