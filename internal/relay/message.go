package relay

import "encoding/json"

// Event names of the meeting signaling protocol.
const (
	EventJoinRoom    = "join-room"
	EventLeaveRoom   = "leave-room"
	EventSignal      = "signal"
	EventUserJoined  = "user-joined"
	EventRoomMembers = "room-members"
	EventUserLeft    = "user-left"
)

// Envelope frames every message on the wire, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest is the payload of a join-room event. UserID is kept
// untyped because clients send either a numeric database id or a
// string; it is forwarded to other members as received.
type JoinRequest struct {
	Room        string  `json:"room"`
	UserID      any     `json:"userId"`
	DisplayName *string `json:"displayName"`
}

// LeaveRequest is the payload of a leave-room event.
type LeaveRequest struct {
	Room string `json:"room"`
}

// UserJoined notifies existing room members of a new arrival.
type UserJoined struct {
	SocketID    string  `json:"socketId"`
	UserID      any     `json:"userId"`
	DisplayName *string `json:"displayName"`
}

// RoomMembers is the reply sent to a joining connection only. Members
// includes the joiner's own connection id; order is not significant.
type RoomMembers struct {
	Members []string `json:"members"`
}

// UserLeft notifies remaining room members that a connection left,
// either explicitly or because it disconnected.
type UserLeft struct {
	SocketID string `json:"socketId"`
}
