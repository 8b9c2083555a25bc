// Package session is the authority over rooms: seats, turn order and move application.
package session

import (
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/bot"
	"github.com/park285/chess-rooms/internal/obslog"
	"github.com/park285/chess-rooms/internal/rules"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

type session struct {
	mu         sync.Mutex
	id         string
	game       *rules.Game
	seats      map[Color]*Occupant
	createdAt  time.Time
	mode       Mode
	difficulty bot.Difficulty
	pending    Timer
	// gen changes on reset so replies claimed before it can be told apart.
	gen uint64
	// version increases on every visible change and is echoed in snapshots.
	version uint64
}

// Registry maps room ids to sessions. The map lock only guards membership;
// each session serializes its own mutations.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{sessions: make(map[string]*session), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) get(roomID string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[roomID]
}

// CreateSession allocates a fresh game for roomID. It returns false and leaves the
// existing session untouched when one is already registered.
func (r *Registry) CreateSession(roomID string, mode Mode, difficulty bot.Difficulty) bool {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return false
	}
	if mode != HumanVsBot {
		mode = HumanVsHuman
		difficulty = ""
	} else if difficulty == "" {
		difficulty = bot.Medium
	}

	r.mu.Lock()
	if _, ok := r.sessions[roomID]; ok {
		r.mu.Unlock()
		return false
	}
	r.sessions[roomID] = &session{
		id:         roomID,
		game:       rules.NewGame(),
		seats:      make(map[Color]*Occupant, 2),
		createdAt:  r.now(),
		mode:       mode,
		difficulty: difficulty,
	}
	r.mu.Unlock()

	obslog.L().Info("session_create",
		zap.String("room_id", roomID),
		zap.String("mode", string(mode)),
		zap.String("bot_difficulty", string(difficulty)),
	)
	return true
}

func (r *Registry) Exists(roomID string) bool { return r.get(roomID) != nil }

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RoomIDs returns the registered room ids, sorted.
func (r *Registry) RoomIDs() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Info(roomID string) (Info, bool) {
	s := r.get(roomID)
	if s == nil {
		return Info{}, false
	}
	return Info{RoomID: s.id, Mode: s.mode, Difficulty: s.difficulty, CreatedAt: s.createdAt}, true
}

// AddOccupant seats occ in the first vacant seat, white before black.
// A connection that already holds a seat gets that seat back. Unknown rooms and
// full rooms yield Spectator.
func (r *Registry) AddOccupant(roomID string, occ Occupant) Color {
	s := r.get(roomID)
	if s == nil || strings.TrimSpace(occ.ConnectionID) == "" {
		return Spectator
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.seatOf(occ.ConnectionID); c != Spectator {
		return c
	}
	for _, c := range seatOrder {
		if s.seats[c] == nil {
			o := occ
			s.seats[c] = &o
			s.version++
			obslog.L().Info("session_seat",
				zap.String("room_id", roomID),
				zap.String("connection_id", occ.ConnectionID),
				zap.String("color", string(c)),
				zap.Bool("is_bot", occ.IsBot),
			)
			return c
		}
	}
	obslog.L().Debug("session_spectator", zap.String("room_id", roomID), zap.String("connection_id", occ.ConnectionID))
	return Spectator
}

// RemoveOccupant vacates the seat held by connectionID and reports which one it was.
func (r *Registry) RemoveOccupant(roomID, connectionID string) Color {
	s := r.get(roomID)
	if s == nil {
		return Spectator
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.seatOf(connectionID)
	if c != Spectator {
		delete(s.seats, c)
		s.version++
		obslog.L().Info("session_unseat",
			zap.String("room_id", roomID),
			zap.String("connection_id", connectionID),
			zap.String("color", string(c)),
		)
	}
	return c
}

// SeatOf reports the seat connectionID holds in roomID.
func (r *Registry) SeatOf(roomID, connectionID string) Color {
	s := r.get(roomID)
	if s == nil {
		return Spectator
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seatOf(connectionID)
}

// HumanSeats counts seated non-bot occupants.
func (r *Registry) HumanSeats(roomID string) int {
	s := r.get(roomID)
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, o := range s.seats {
		if !o.IsBot {
			n++
		}
	}
	return n
}

func (s *session) seatOf(connectionID string) Color {
	if connectionID == "" {
		return Spectator
	}
	for _, c := range seatOrder {
		if o := s.seats[c]; o != nil && o.ConnectionID == connectionID {
			return c
		}
	}
	return Spectator
}

// ApplyMove validates and plays a move for connectionID. The turn check and the
// mutation happen under the session lock, so two moves for the same color can
// never both pass the check.
func (r *Registry) ApplyMove(roomID, connectionID string, spec rules.MoveSpec) MoveResult {
	s := r.get(roomID)
	if s == nil {
		return Rejected{Reason: ErrRoomNotFound}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyLocked(connectionID, spec)
}

func (s *session) applyLocked(connectionID string, spec rules.MoveSpec) MoveResult {
	color := s.seatOf(connectionID)
	if color == Spectator {
		return Rejected{Reason: ErrNotAParticipant}
	}
	if color.side() != s.game.Turn() {
		return Rejected{Reason: ErrNotYourTurn}
	}
	rec, err := s.game.Apply(spec)
	if err != nil {
		obslog.L().Debug("session_move_rejected",
			zap.String("room_id", s.id),
			zap.String("connection_id", connectionID),
			zap.String("uci", spec.UCI()),
			zap.Error(err),
		)
		return Rejected{Reason: ErrIllegalMove}
	}
	s.version++
	snap := s.snapshotLocked()
	obslog.L().Info("session_move",
		zap.String("room_id", s.id),
		zap.String("connection_id", connectionID),
		zap.String("color", string(color)),
		zap.String("san", rec.SAN),
		zap.Bool("game_over", snap.IsGameOver),
	)
	return Accepted{ConnectionID: connectionID, Spec: spec, Move: rec, Snapshot: snap}
}

// Snapshot returns the client view of roomID, nil when unknown.
func (r *Registry) Snapshot(roomID string) *roomdto.Snapshot {
	s := r.get(roomID)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// ResetSession puts the game back at the start, keeps seats and cancels any pending bot reply.
func (r *Registry) ResetSession(roomID string) bool {
	s := r.get(roomID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	s.cancelPendingLocked()
	s.game = rules.NewGame()
	s.gen++
	s.version++
	s.mu.Unlock()
	obslog.L().Info("session_reset", zap.String("room_id", roomID))
	return true
}

// DestroySession unregisters roomID and cancels any pending bot reply before returning.
func (r *Registry) DestroySession(roomID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[roomID]
	if ok {
		delete(r.sessions, roomID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.cancelPendingLocked()
	s.gen++
	s.mu.Unlock()
	obslog.L().Info("session_destroy", zap.String("room_id", roomID))
	return true
}

// ArmBotReply stores t as the pending reply, stopping any previous one.
// For an unknown room t is stopped and false is returned.
func (r *Registry) ArmBotReply(roomID string, t Timer) bool {
	s := r.get(roomID)
	if s == nil {
		if t != nil {
			t.Stop()
		}
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil && s.pending != t {
		s.pending.Stop()
	}
	s.pending = t
	return true
}

// ClearBotReply stops and forgets the pending reply, if any.
func (r *Registry) ClearBotReply(roomID string) {
	s := r.get(roomID)
	if s == nil {
		return
	}
	s.mu.Lock()
	s.cancelPendingLocked()
	s.mu.Unlock()
}

func (r *Registry) HasPendingBotReply(roomID string) bool {
	s := r.get(roomID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *session) cancelPendingLocked() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// BotToMove reports whether roomID is a bot game, running, with the bot seated and on turn.
func (r *Registry) BotToMove(roomID string) bool {
	s := r.get(roomID)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.botOnTurnLocked()
	return ok
}

func (s *session) botOnTurnLocked() (*Occupant, bool) {
	if s.mode != HumanVsBot || s.game.IsGameOver() {
		return nil, false
	}
	o := s.seats[colorOf(s.game.Turn())]
	if o == nil || !o.IsBot {
		return nil, false
	}
	return o, true
}

// BeginBotReply is called when timer t fires. If t is still the pending reply it is
// cleared, and when the bot is on turn a private copy of the current position is
// returned for move selection.
func (r *Registry) BeginBotReply(roomID string, t Timer) (BotTurn, bool) {
	s := r.get(roomID)
	if s == nil {
		return BotTurn{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending != t {
		return BotTurn{}, false
	}
	s.pending = nil
	o, ok := s.botOnTurnLocked()
	if !ok {
		return BotTurn{}, false
	}
	return BotTurn{
		RoomID:       s.id,
		ConnectionID: o.ConnectionID,
		Color:        colorOf(s.game.Turn()),
		Difficulty:   s.difficulty,
		Game:         s.game.Clone(),
		s:            s,
		gen:          s.gen,
	}, true
}

// ApplyBotMove plays spec for a claimed bot turn through the same checks as ApplyMove.
// It is rejected with ErrStaleReply when the session was reset or replaced since the claim.
func (r *Registry) ApplyBotMove(turn BotTurn, spec rules.MoveSpec) MoveResult {
	s := r.get(turn.RoomID)
	if s == nil {
		return Rejected{Reason: ErrRoomNotFound}
	}
	if s != turn.s {
		return Rejected{Reason: ErrStaleReply}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != turn.gen {
		return Rejected{Reason: ErrStaleReply}
	}
	return s.applyLocked(turn.ConnectionID, spec)
}
