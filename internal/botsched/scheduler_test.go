package botsched

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/chess-rooms/internal/bot"
	"github.com/park285/chess-rooms/internal/rules"
	"github.com/park285/chess-rooms/internal/session"
)

type manualTimer struct {
	mu      sync.Mutex
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// forceFire runs the callback even when stopped, like a timer that already fired
// while Stop was racing it.
func (t *manualTimer) forceFire() { t.f() }

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) last(t *testing.T) *manualTimer {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		t.Fatalf("no timer armed")
	}
	return c.timers[len(c.timers)-1]
}

type firstMoveChooser struct {
	delay time.Duration
	none  bool
}

func (c firstMoveChooser) Choose(g *rules.Game, _ bot.Difficulty) (rules.MoveSpec, bool) {
	if c.none {
		return rules.MoveSpec{}, false
	}
	specs := g.LegalSpecs()
	if len(specs) == 0 {
		return rules.MoveSpec{}, false
	}
	return specs[0], true
}

func (c firstMoveChooser) ThinkingDelay(bot.Difficulty) time.Duration { return c.delay }

type harness struct {
	reg   *session.Registry
	clock *manualClock
	sched *Scheduler
	moves []session.Accepted
}

func newHarness(t *testing.T, chooser Chooser) *harness {
	t.Helper()
	h := &harness{reg: session.NewRegistry(), clock: &manualClock{}}
	h.sched = New(h.reg, chooser,
		WithAfterFunc(h.clock.AfterFunc),
		WithOnMove(func(_ string, acc session.Accepted) { h.moves = append(h.moves, acc) }),
	)
	h.reg.CreateSession("b1", session.HumanVsBot, bot.Hard)
	h.reg.AddOccupant("b1", session.Occupant{ConnectionID: "human"})
	h.reg.AddOccupant("b1", session.Occupant{ConnectionID: "bot:b1", UserID: "Bot", IsBot: true})
	return h
}

func (h *harness) humanMove(t *testing.T, from, to string) {
	t.Helper()
	if _, ok := h.reg.ApplyMove("b1", "human", rules.MoveSpec{From: from, To: to}).(session.Accepted); !ok {
		t.Fatalf("human move %s%s rejected", from, to)
	}
}

func TestBotRepliesAfterDelay(t *testing.T) {
	h := newHarness(t, firstMoveChooser{delay: 1500 * time.Millisecond})
	if h.sched.MaybeSchedule("b1") {
		t.Fatalf("nothing to schedule while white is on turn")
	}
	h.humanMove(t, "e2", "e4")
	if !h.sched.MaybeSchedule("b1") {
		t.Fatalf("expected a reply to be armed")
	}
	tm := h.clock.last(t)
	if tm.delay != 1500*time.Millisecond {
		t.Fatalf("delay=%v", tm.delay)
	}
	if !h.reg.HasPendingBotReply("b1") {
		t.Fatalf("registry has no pending reply")
	}
	tm.forceFire()
	if len(h.moves) != 1 || h.moves[0].ConnectionID != "bot:b1" {
		t.Fatalf("bot move not delivered: %+v", h.moves)
	}
	snap := h.reg.Snapshot("b1")
	if snap.SideToMove != "w" || len(snap.MoveHistory) != 2 {
		t.Fatalf("unexpected snapshot after bot move: %+v", snap)
	}
	if h.reg.HasPendingBotReply("b1") {
		t.Fatalf("pending reply should be cleared after firing")
	}
}

func TestLateCallbackAfterDestroyIsHarmless(t *testing.T) {
	h := newHarness(t, firstMoveChooser{})
	h.humanMove(t, "e2", "e4")
	h.sched.MaybeSchedule("b1")
	tm := h.clock.last(t)
	h.reg.DestroySession("b1")
	if !tm.stopped {
		t.Fatalf("destroy should stop the timer")
	}
	tm.forceFire()
	if len(h.moves) != 0 || h.reg.Exists("b1") {
		t.Fatalf("late callback mutated state")
	}
}

func TestLateCallbackAfterResetIsHarmless(t *testing.T) {
	h := newHarness(t, firstMoveChooser{})
	h.humanMove(t, "e2", "e4")
	h.sched.MaybeSchedule("b1")
	tm := h.clock.last(t)
	h.reg.ResetSession("b1")
	tm.forceFire()
	if len(h.moves) != 0 {
		t.Fatalf("reply applied to a reset game")
	}
	if n := len(h.reg.Snapshot("b1").MoveHistory); n != 0 {
		t.Fatalf("history length %d after reset", n)
	}
}

func TestRearmReplacesPrevious(t *testing.T) {
	h := newHarness(t, firstMoveChooser{})
	h.humanMove(t, "e2", "e4")
	h.sched.MaybeSchedule("b1")
	first := h.clock.last(t)
	h.sched.MaybeSchedule("b1")
	second := h.clock.last(t)
	if first == second || !first.stopped {
		t.Fatalf("first timer should be stopped and replaced")
	}
	first.forceFire()
	if len(h.moves) != 0 {
		t.Fatalf("superseded timer played a move")
	}
	second.forceFire()
	second.forceFire()
	if len(h.moves) != 1 {
		t.Fatalf("moves=%d want exactly 1", len(h.moves))
	}
}

func TestCancelStopsPendingReply(t *testing.T) {
	h := newHarness(t, firstMoveChooser{})
	h.humanMove(t, "e2", "e4")
	h.sched.MaybeSchedule("b1")
	tm := h.clock.last(t)
	h.sched.Cancel("b1")
	tm.forceFire()
	if !tm.stopped || len(h.moves) != 0 {
		t.Fatalf("cancel did not stop the reply")
	}
}

func TestNoMoveFromChooserIsAbsorbed(t *testing.T) {
	h := newHarness(t, firstMoveChooser{none: true})
	h.humanMove(t, "e2", "e4")
	h.sched.MaybeSchedule("b1")
	h.clock.last(t).forceFire()
	if len(h.moves) != 0 || h.reg.Snapshot("b1").SideToMove != "b" {
		t.Fatalf("state changed without a chosen move")
	}
}

func TestHumanGameNeverSchedules(t *testing.T) {
	reg := session.NewRegistry()
	clk := &manualClock{}
	s := New(reg, firstMoveChooser{}, WithAfterFunc(clk.AfterFunc))
	reg.CreateSession("r1", session.HumanVsHuman, "")
	reg.AddOccupant("r1", session.Occupant{ConnectionID: "a"})
	reg.AddOccupant("r1", session.Occupant{ConnectionID: "b"})
	reg.ApplyMove("r1", "a", rules.MoveSpec{From: "e2", To: "e4"})
	if s.MaybeSchedule("r1") || len(clk.timers) != 0 {
		t.Fatalf("human game armed a bot reply")
	}
}

func TestRealTimerPlaysReply(t *testing.T) {
	reg := session.NewRegistry()
	done := make(chan session.Accepted, 1)
	s := New(reg, firstMoveChooser{delay: time.Millisecond},
		WithOnMove(func(_ string, acc session.Accepted) { done <- acc }))
	reg.CreateSession("b1", session.HumanVsBot, bot.Easy)
	reg.AddOccupant("b1", session.Occupant{ConnectionID: "human"})
	reg.AddOccupant("b1", session.Occupant{ConnectionID: "bot:b1", IsBot: true})
	reg.ApplyMove("b1", "human", rules.MoveSpec{From: "d2", To: "d4"})
	s.MaybeSchedule("b1")
	select {
	case acc := <-done:
		if acc.Snapshot.SideToMove != "w" {
			t.Fatalf("sideToMove=%q", acc.Snapshot.SideToMove)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bot reply never arrived")
	}
}
