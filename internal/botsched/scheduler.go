// Package botsched arms delayed bot replies and plays them back through the registry.
package botsched

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/bot"
	"github.com/park285/chess-rooms/internal/obslog"
	"github.com/park285/chess-rooms/internal/rules"
	"github.com/park285/chess-rooms/internal/session"
)

// Chooser picks and paces bot moves.
type Chooser interface {
	Choose(g *rules.Game, d bot.Difficulty) (rules.MoveSpec, bool)
	ThinkingDelay(d bot.Difficulty) time.Duration
}

// AfterFunc schedules f after d and returns a handle that cancels it.
type AfterFunc func(d time.Duration, f func()) session.Timer

func realAfterFunc(d time.Duration, f func()) session.Timer { return time.AfterFunc(d, f) }

// MoveFunc receives every bot move the registry accepted.
type MoveFunc func(roomID string, acc session.Accepted)

type Scheduler struct {
	reg       *session.Registry
	chooser   Chooser
	afterFunc AfterFunc
	onMove    MoveFunc
}

type Option func(*Scheduler)

func WithAfterFunc(f AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = f }
}

func WithOnMove(f MoveFunc) Option {
	return func(s *Scheduler) { s.onMove = f }
}

func New(reg *session.Registry, chooser Chooser, opts ...Option) *Scheduler {
	s := &Scheduler{reg: reg, chooser: chooser, afterFunc: realAfterFunc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// pending is registered with the registry before its timer starts, so a timer
// can never fire ahead of being armed.
type pending struct {
	mu      sync.Mutex
	stopped bool
	t       session.Timer
}

func (p *pending) Stop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	if p.t != nil {
		return p.t.Stop()
	}
	return true
}

func (p *pending) start(after AfterFunc, d time.Duration, f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.t = after(d, f)
}

// MaybeSchedule arms a reply when roomID is a running bot game with the bot on turn.
// Any reply already armed for the room is replaced.
func (s *Scheduler) MaybeSchedule(roomID string) bool {
	if !s.reg.BotToMove(roomID) {
		return false
	}
	info, ok := s.reg.Info(roomID)
	if !ok {
		return false
	}
	delay := s.chooser.ThinkingDelay(info.Difficulty)
	p := &pending{}
	if !s.reg.ArmBotReply(roomID, p) {
		return false
	}
	p.start(s.afterFunc, delay, func() { s.fire(roomID, p) })
	obslog.L().Debug("bot_move_armed", zap.String("room_id", roomID), zap.Duration("delay", delay))
	return true
}

// Cancel drops any armed reply for roomID.
func (s *Scheduler) Cancel(roomID string) {
	s.reg.ClearBotReply(roomID)
}

func (s *Scheduler) fire(roomID string, p *pending) {
	turn, ok := s.reg.BeginBotReply(roomID, p)
	if !ok {
		obslog.L().Debug("bot_move_skipped", zap.String("room_id", roomID), zap.String("reason", "not armed or not on turn"))
		return
	}
	spec, ok := s.chooser.Choose(turn.Game, turn.Difficulty)
	if !ok {
		obslog.L().Debug("bot_move_skipped", zap.String("room_id", roomID), zap.String("reason", "no legal move"))
		return
	}
	switch res := s.reg.ApplyBotMove(turn, spec).(type) {
	case session.Accepted:
		obslog.L().Info("bot_move",
			zap.String("room_id", roomID),
			zap.String("difficulty", string(turn.Difficulty)),
			zap.String("san", res.Move.SAN),
		)
		if s.onMove != nil {
			s.onMove(roomID, res)
		}
	case session.Rejected:
		obslog.L().Debug("bot_move_skipped", zap.String("room_id", roomID), zap.String("reason", string(res.Reason)))
	}
}
