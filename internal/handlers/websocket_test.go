package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskit/meeting-signaling/internal/relay"
)

func startSignalingServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws/signal", Signaling(relay.New(relay.Options{})))
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/signal"
}

func dialSignaling(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	frame, err := json.Marshal(relay.Envelope{Event: event, Data: payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) relay.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var env relay.Envelope
	require.NoError(t, json.Unmarshal(frame, &env))
	return env
}

func TestSignalingSession(t *testing.T) {
	url := startSignalingServer(t)

	c1 := dialSignaling(t, url)
	sendEvent(t, c1, relay.EventJoinRoom, gin.H{"room": "math101"})

	env := readEvent(t, c1)
	require.Equal(t, relay.EventRoomMembers, env.Event)
	var members relay.RoomMembers
	require.NoError(t, json.Unmarshal(env.Data, &members))
	require.Len(t, members.Members, 1)
	c1ID := members.Members[0]

	c2 := dialSignaling(t, url)
	sendEvent(t, c2, relay.EventJoinRoom, gin.H{"room": "math101", "displayName": "Sam"})

	env = readEvent(t, c2)
	require.Equal(t, relay.EventRoomMembers, env.Event)
	require.NoError(t, json.Unmarshal(env.Data, &members))
	require.Len(t, members.Members, 2)
	assert.Contains(t, members.Members, c1ID)

	env = readEvent(t, c1)
	require.Equal(t, relay.EventUserJoined, env.Event)
	var joined relay.UserJoined
	require.NoError(t, json.Unmarshal(env.Data, &joined))
	c2ID := joined.SocketID
	assert.NotEqual(t, c1ID, c2ID)
	assert.Contains(t, members.Members, c2ID)
	assert.Nil(t, joined.UserID)
	require.NotNil(t, joined.DisplayName)
	assert.Equal(t, "Sam", *joined.DisplayName)

	// Point-to-point signaling payload is forwarded verbatim.
	sendEvent(t, c1, relay.EventSignal, gin.H{"to": c2ID, "sdp": "v=0"})
	env = readEvent(t, c2)
	require.Equal(t, relay.EventSignal, env.Event)
	assert.JSONEq(t, `{"to":"`+c2ID+`","sdp":"v=0"}`, string(env.Data))

	// Abrupt close of c2 surfaces as user-left to c1.
	c2.Close()
	env = readEvent(t, c1)
	require.Equal(t, relay.EventUserLeft, env.Event)
	var left relay.UserLeft
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Equal(t, c2ID, left.SocketID)
}

func TestExplicitLeaveNotifiesPeers(t *testing.T) {
	url := startSignalingServer(t)

	c1 := dialSignaling(t, url)
	sendEvent(t, c1, relay.EventJoinRoom, gin.H{"room": "sci202"})
	env := readEvent(t, c1)
	require.Equal(t, relay.EventRoomMembers, env.Event)

	c2 := dialSignaling(t, url)
	sendEvent(t, c2, relay.EventJoinRoom, gin.H{"room": "sci202"})
	env = readEvent(t, c2)
	require.Equal(t, relay.EventRoomMembers, env.Event)
	env = readEvent(t, c1)
	require.Equal(t, relay.EventUserJoined, env.Event)
	var joined relay.UserJoined
	require.NoError(t, json.Unmarshal(env.Data, &joined))

	sendEvent(t, c2, relay.EventLeaveRoom, gin.H{"room": "sci202"})
	env = readEvent(t, c1)
	require.Equal(t, relay.EventUserLeft, env.Event)
	var left relay.UserLeft
	require.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Equal(t, joined.SocketID, left.SocketID)
}
