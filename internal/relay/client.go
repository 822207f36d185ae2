package relay

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Time allowed to write a single message to the peer.
const writeWait = 10 * time.Second

// Client is one websocket connection known to the relay.
type Client struct {
	ID    string
	relay *Relay
	conn  *websocket.Conn

	// Send buffers outbound frames; writePump is the only reader.
	Send chan []byte
}

// ReadPump reads inbound envelopes and dispatches them to the relay.
// It owns all reads on the connection and triggers disconnect cleanup
// on exit, whatever the reason the connection went away.
func (c *Client) ReadPump() {
	defer func() {
		c.relay.Disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.relay.timeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.relay.timeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn", c.ID).Msg("websocket read error")
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Str("conn", c.ID).Msg("dropping malformed frame")
			continue
		}

		switch env.Event {
		case EventJoinRoom:
			var req JoinRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				continue
			}
			c.relay.Join(c, req)
		case EventLeaveRoom:
			var req LeaveRequest
			if err := json.Unmarshal(env.Data, &req); err != nil {
				continue
			}
			c.relay.Leave(c, req.Room)
		case EventSignal:
			c.relay.Signal(c, env.Data)
		default:
			log.Debug().Str("conn", c.ID).Str("event", env.Event).Msg("unknown event")
		}
	}
}

// WritePump serializes all writes to the connection and keeps it alive
// with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.relay.interval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn().Err(err).Str("conn", c.ID).Msg("websocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendEvent(event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal event payload")
		return
	}
	c.sendRaw(Envelope{Event: event, Data: payload})
}

func (c *Client) sendRaw(env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		log.Error().Err(err).Str("event", env.Event).Msg("failed to marshal envelope")
		return
	}
	select {
	case c.Send <- frame:
		eventsDelivered.Inc()
	default:
		framesDropped.Inc()
		log.Warn().Str("conn", c.ID).Str("event", env.Event).Msg("send buffer full, dropping frame")
	}
}
