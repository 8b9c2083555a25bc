package session

import (
	"time"

	"github.com/park285/chess-rooms/internal/bot"
	"github.com/park285/chess-rooms/internal/rules"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

// Color names a seat. Spectator means no seat.
type Color string

const (
	White     Color = "white"
	Black     Color = "black"
	Spectator Color = ""
)

// seatOrder is the fixed assignment order for new occupants.
var seatOrder = [...]Color{White, Black}

func (c Color) side() rules.Color {
	if c == White {
		return rules.White
	}
	return rules.Black
}

func colorOf(side rules.Color) Color {
	if side == rules.White {
		return White
	}
	return Black
}

// Mode is fixed when a session is created.
type Mode string

const (
	HumanVsHuman Mode = "human-vs-human"
	HumanVsBot   Mode = "human-vs-bot"
)

// Occupant holds a seat.
type Occupant struct {
	ConnectionID string
	UserID       string
	IsBot        bool
}

// Reason is a move rejection. It doubles as an error value.
type Reason string

func (r Reason) Error() string { return string(r) }

const (
	ErrRoomNotFound    Reason = "session not found"
	ErrNotAParticipant Reason = "not a participant"
	ErrNotYourTurn     Reason = "not your turn"
	ErrIllegalMove     Reason = "illegal move"
	ErrRoomFull        Reason = "room full"
	// ErrStaleReply rejects a bot reply whose session was reset or replaced after it was armed.
	ErrStaleReply Reason = "stale bot reply"
)

// MoveResult is either Accepted or Rejected.
type MoveResult interface{ moveResult() }

type Accepted struct {
	ConnectionID string
	Spec         rules.MoveSpec
	Move         rules.MoveRecord
	Snapshot     *roomdto.Snapshot
}

type Rejected struct {
	Reason Reason
}

func (Accepted) moveResult() {}
func (Rejected) moveResult() {}

// Timer is a pending bot reply handle. Implementations must be comparable (pointer types).
type Timer interface {
	Stop() bool
}

// Info is the immutable part of a session.
type Info struct {
	RoomID     string
	Mode       Mode
	Difficulty bot.Difficulty
	CreatedAt  time.Time
}

// BotTurn is a claimed bot reply: a private copy of the position plus the identity to move with.
type BotTurn struct {
	RoomID       string
	ConnectionID string
	Color        Color
	Difficulty   bot.Difficulty
	Game         *rules.Game

	s   *session
	gen uint64
}
