package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const sideEffectTimeout = 5 * time.Second

// ParticipantRecorder persists a join against a durable meeting whose
// slug matches the room name. A room that does not resolve to a known
// meeting is reported as (false, nil) and is not an error.
type ParticipantRecorder interface {
	RecordJoin(ctx context.Context, room string, userID, displayName *string) (bool, error)
}

// PresenceTracker mirrors live room membership into an external store
// for read-side consumers. Calls are best-effort.
type PresenceTracker interface {
	Joined(ctx context.Context, room, connID string) error
	Left(ctx context.Context, room, connID string) error
}

// Options configures a Relay. Recorder and Presence may be nil, in
// which case the corresponding side effects are skipped.
type Options struct {
	Recorder          ParticipantRecorder
	Presence          PresenceTracker
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Relay groups websocket connections into named rooms and fans
// membership and signaling events out to room members. All state is
// process-local; a restart simply requires clients to re-join.
//
// Three maps are kept in lockstep under one mutex: the connection
// index (for point-to-point signal routing), the room groups (the
// fan-out sets), and the per-connection tracked room sets. A
// connection's tracked set must always equal the set of room groups
// that contain it.
type Relay struct {
	recorder ParticipantRecorder
	presence PresenceTracker
	interval time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	members map[string]map[string]struct{}
}

func New(opts Options) *Relay {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 54 * time.Second
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 60 * time.Second
	}
	return &Relay{
		recorder: opts.Recorder,
		presence: opts.Presence,
		interval: opts.HeartbeatInterval,
		timeout:  opts.HeartbeatTimeout,
		clients:  make(map[string]*Client),
		rooms:    make(map[string]map[string]*Client),
		members:  make(map[string]map[string]struct{}),
	}
}

// Register creates a Client for an established websocket connection,
// assigns it a unique connection id and an empty room set, and adds it
// to the connection index. The caller is responsible for starting the
// client's pumps.
func (r *Relay) Register(conn *websocket.Conn) *Client {
	c := &Client{
		ID:    uuid.New().String(),
		relay: r,
		conn:  conn,
		Send:  make(chan []byte, 256),
	}

	r.mu.Lock()
	r.clients[c.ID] = c
	r.members[c.ID] = make(map[string]struct{})
	r.mu.Unlock()

	activeConnections.Inc()
	log.Debug().Str("conn", c.ID).Msg("client connected")
	return c
}

// Join adds the client to the room, notifies the other members and
// replies to the client with the room's full member list. An empty
// room name is a no-op. The persistence and presence side effects run
// on a detached goroutine and never delay or fail the join.
func (r *Relay) Join(c *Client, req JoinRequest) {
	if req.Room == "" {
		return
	}

	r.mu.Lock()
	group, ok := r.rooms[req.Room]
	if !ok {
		group = make(map[string]*Client)
		r.rooms[req.Room] = group
	}
	group[c.ID] = c
	tracked, ok := r.members[c.ID]
	if !ok {
		tracked = make(map[string]struct{})
		r.members[c.ID] = tracked
	}
	tracked[req.Room] = struct{}{}

	memberIDs := make([]string, 0, len(group))
	others := make([]*Client, 0, len(group)-1)
	for id, member := range group {
		memberIDs = append(memberIDs, id)
		if id != c.ID {
			others = append(others, member)
		}
	}
	activeRooms.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	go r.recordJoin(req, c.ID)

	joined := UserJoined{SocketID: c.ID, UserID: req.UserID, DisplayName: req.DisplayName}
	for _, member := range others {
		member.sendEvent(EventUserJoined, joined)
	}
	c.sendEvent(EventRoomMembers, RoomMembers{Members: memberIDs})

	log.Debug().Str("conn", c.ID).Str("room", req.Room).Int("members", len(memberIDs)).Msg("joined room")
}

// recordJoin is the fire-and-forget side of Join: participant row in
// the meeting store plus the presence set. Failures are logged and
// swallowed.
func (r *Relay) recordJoin(req JoinRequest, connID string) {
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()

	if r.recorder != nil {
		found, err := r.recorder.RecordJoin(ctx, req.Room, stringify(req.UserID), req.DisplayName)
		if err != nil {
			log.Error().Err(err).Str("room", req.Room).Msg("failed to record participant")
		} else if !found {
			log.Debug().Str("room", req.Room).Msg("room has no persisted meeting, participant not recorded")
		}
	}
	if r.presence != nil {
		if err := r.presence.Joined(ctx, req.Room, connID); err != nil {
			log.Error().Err(err).Str("room", req.Room).Msg("failed to track presence")
		}
	}
}

// Leave removes the client from the room and notifies the remaining
// members. The user-left broadcast is emitted under the given room
// name even when the client never joined it, matching the behavior
// clients already depend on.
func (r *Relay) Leave(c *Client, room string) {
	if room == "" {
		return
	}

	r.mu.Lock()
	remaining := r.removeFromRoom(c, room)
	if tracked, ok := r.members[c.ID]; ok {
		delete(tracked, room)
		if len(tracked) == 0 {
			delete(r.members, c.ID)
		}
	}
	activeRooms.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	left := UserLeft{SocketID: c.ID}
	for _, member := range remaining {
		member.sendEvent(EventUserLeft, left)
	}

	go r.recordLeave(room, c.ID)
	log.Debug().Str("conn", c.ID).Str("room", room).Msg("left room")
}

// Signal forwards the payload verbatim to the addressed connection.
// Requests without a target, and targets that do not exist, are
// dropped silently.
func (r *Relay) Signal(c *Client, data json.RawMessage) {
	var addr struct {
		To string `json:"to"`
	}
	if err := json.Unmarshal(data, &addr); err != nil || addr.To == "" {
		return
	}

	r.mu.Lock()
	target, ok := r.clients[addr.To]
	r.mu.Unlock()
	if !ok {
		return
	}

	target.sendRaw(Envelope{Event: EventSignal, Data: data})
}

// Disconnect broadcasts user-left to every room the client still
// tracks, then discards all of its state. Safe to call once per
// connection regardless of how the transport went away.
func (r *Relay) Disconnect(c *Client) {
	r.mu.Lock()
	if _, ok := r.clients[c.ID]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, c.ID)

	tracked := r.members[c.ID]
	delete(r.members, c.ID)

	remaining := make(map[string][]*Client, len(tracked))
	for room := range tracked {
		remaining[room] = r.removeFromRoom(c, room)
	}
	activeRooms.Set(float64(len(r.rooms)))
	r.mu.Unlock()

	left := UserLeft{SocketID: c.ID}
	for room, members := range remaining {
		for _, member := range members {
			member.sendEvent(EventUserLeft, left)
		}
		go r.recordLeave(room, c.ID)
	}

	activeConnections.Dec()
	log.Debug().Str("conn", c.ID).Int("rooms", len(tracked)).Msg("client disconnected")
}

// removeFromRoom drops the client from a room group, deletes the group
// when it empties, and returns the members still in it. Caller holds
// the mutex.
func (r *Relay) removeFromRoom(c *Client, room string) []*Client {
	group, ok := r.rooms[room]
	if !ok {
		return nil
	}
	delete(group, c.ID)
	if len(group) == 0 {
		delete(r.rooms, room)
		return nil
	}
	remaining := make([]*Client, 0, len(group))
	for _, member := range group {
		remaining = append(remaining, member)
	}
	return remaining
}

func (r *Relay) recordLeave(room, connID string) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sideEffectTimeout)
	defer cancel()
	if err := r.presence.Left(ctx, room, connID); err != nil {
		log.Error().Err(err).Str("room", room).Msg("failed to clear presence")
	}
}

// Rooms reports the rooms the connection currently tracks.
func (r *Relay) Rooms(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	tracked := r.members[connID]
	rooms := make([]string, 0, len(tracked))
	for room := range tracked {
		rooms = append(rooms, room)
	}
	return rooms
}

// InRoom reports whether the connection is in the room's fan-out group.
func (r *Relay) InRoom(connID, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[room][connID]
	return ok
}

func stringify(v any) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	return &s
}
