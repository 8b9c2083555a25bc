package roomdto

import "time"

// Event type names on the wire.
const (
	EventJoinRoom  = "joinRoom"
	EventLeaveRoom = "leaveRoom"
	EventMove      = "move"
	EventReset     = "reset"
	EventEnqueue   = "enqueue"
	EventDequeue   = "dequeue"

	EventWelcome      = "welcome"
	EventJoinedRoom   = "joinedRoom"
	EventPlayerJoined = "playerJoined"
	EventPlayerLeft   = "playerLeft"
	EventMoveMade     = "moveMade"
	EventMoveRejected = "moveRejected"
	EventGameReset    = "gameReset"
	EventMatchFound   = "matchFound"
	EventQueued       = "queued"
	EventDequeued     = "dequeued"
	EventError        = "error"
)

// SeatSpectator is the seatColor reported to a joiner who got no seat.
const SeatSpectator = "spectator"

type MoveSpec struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// Inbound is every client event flattened into one envelope; Type selects which fields apply.
type Inbound struct {
	Type          string    `json:"type"`
	RoomID        string    `json:"roomId,omitempty"`
	UserID        string    `json:"userId,omitempty"`
	DisplayName   string    `json:"displayName,omitempty"`
	IsBotGame     bool      `json:"isBotGame,omitempty"`
	BotDifficulty string    `json:"botDifficulty,omitempty"`
	MoveSpec      *MoveSpec `json:"moveSpec,omitempty"`
}

type QueueEntry struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId,omitempty"`
	DisplayName  string    `json:"displayName,omitempty"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type Welcome struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
}

type JoinedRoom struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId"`
	SeatColor string    `json:"seatColor"`
	Snapshot  *Snapshot `json:"snapshot"`
}

type PlayerJoined struct {
	Type      string    `json:"type"`
	RoomID    string    `json:"roomId"`
	SeatColor string    `json:"seatColor"`
	Snapshot  *Snapshot `json:"snapshot"`
}

type PlayerLeft struct {
	Type         string    `json:"type"`
	RoomID       string    `json:"roomId"`
	ConnectionID string    `json:"connectionId"`
	Snapshot     *Snapshot `json:"snapshot,omitempty"`
}

type MoveMade struct {
	Type         string     `json:"type"`
	RoomID       string     `json:"roomId"`
	ConnectionID string     `json:"connectionId"`
	MoveSpec     MoveSpec   `json:"moveSpec"`
	Move         MoveRecord `json:"move"`
	Snapshot     *Snapshot  `json:"snapshot"`
}

type MoveRejected struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

type GameReset struct {
	Type     string    `json:"type"`
	RoomID   string    `json:"roomId"`
	Snapshot *Snapshot `json:"snapshot"`
}

type MatchFound struct {
	Type      string     `json:"type"`
	RoomID    string     `json:"roomId"`
	SeatColor string     `json:"seatColor"`
	Opponent  QueueEntry `json:"opponent"`
}

type Queued struct {
	Type        string `json:"type"`
	QueueLength int    `json:"queueLength"`
}

type Dequeued struct {
	Type    string `json:"type"`
	Removed bool   `json:"removed"`
}

type ErrorEvent struct {
	Type  string      `json:"type"`
	Error DomainError `json:"error"`
}
