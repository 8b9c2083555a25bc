package session

import (
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/park285/chess-rooms/internal/bot"
	"github.com/park285/chess-rooms/internal/rules"
)

type stubTimer struct{ stopped atomic.Bool }

func (t *stubTimer) Stop() bool { return !t.stopped.Swap(true) }

func newTwoSeatRoom(t *testing.T, roomID string) *Registry {
	t.Helper()
	r := NewRegistry()
	if !r.CreateSession(roomID, HumanVsHuman, "") {
		t.Fatalf("CreateSession(%s) returned false", roomID)
	}
	if c := r.AddOccupant(roomID, Occupant{ConnectionID: "p1"}); c != White {
		t.Fatalf("p1 seat=%q want white", c)
	}
	if c := r.AddOccupant(roomID, Occupant{ConnectionID: "p2"}); c != Black {
		t.Fatalf("p2 seat=%q want black", c)
	}
	return r
}

func mv(s string) rules.MoveSpec { return rules.MoveSpec{From: s[0:2], To: s[2:4]} }

func mustAccept(t *testing.T, res MoveResult) Accepted {
	t.Helper()
	acc, ok := res.(Accepted)
	if !ok {
		t.Fatalf("expected Accepted, got %#v", res)
	}
	return acc
}

func mustReject(t *testing.T, res MoveResult, want Reason) {
	t.Helper()
	rej, ok := res.(Rejected)
	if !ok {
		t.Fatalf("expected Rejected(%s), got %#v", want, res)
	}
	if rej.Reason != want {
		t.Fatalf("reason=%q want %q", rej.Reason, want)
	}
}

func TestAlternatingMovesFlipSideToMove(t *testing.T) {
	r := newTwoSeatRoom(t, "r1")
	acc := mustAccept(t, r.ApplyMove("r1", "p1", mv("e2e4")))
	if acc.Snapshot.SideToMove != "b" {
		t.Fatalf("sideToMove=%q want b", acc.Snapshot.SideToMove)
	}
	acc = mustAccept(t, r.ApplyMove("r1", "p2", mv("e7e5")))
	if acc.Snapshot.SideToMove != "w" {
		t.Fatalf("sideToMove=%q want w", acc.Snapshot.SideToMove)
	}
	if len(acc.Snapshot.MoveHistory) != 2 || acc.Snapshot.MoveHistory[1].SAN != "e5" {
		t.Fatalf("unexpected history: %+v", acc.Snapshot.MoveHistory)
	}
}

func TestRejectionTaxonomyLeavesStateUnchanged(t *testing.T) {
	r := newTwoSeatRoom(t, "r1")
	before := r.Snapshot("r1")

	mustReject(t, r.ApplyMove("nope", "p1", mv("e2e4")), ErrRoomNotFound)
	mustReject(t, r.ApplyMove("r1", "stranger", mv("e2e4")), ErrNotAParticipant)
	mustReject(t, r.ApplyMove("r1", "p2", mv("e7e5")), ErrNotYourTurn)
	mustReject(t, r.ApplyMove("r1", "p1", mv("e2e5")), ErrIllegalMove)
	mustReject(t, r.ApplyMove("r1", "p1", rules.MoveSpec{From: "??", To: "e4"}), ErrIllegalMove)

	if after := r.Snapshot("r1"); !reflect.DeepEqual(before, after) {
		t.Fatalf("snapshot changed after rejections:\nbefore=%+v\nafter=%+v", before, after)
	}
}

func TestSnapshotVersionIncreases(t *testing.T) {
	r := newTwoSeatRoom(t, "r1")
	v0 := r.Snapshot("r1").Version
	acc := mustAccept(t, r.ApplyMove("r1", "p1", mv("e2e4")))
	if acc.Snapshot.Version <= v0 {
		t.Fatalf("version after move=%d, before=%d", acc.Snapshot.Version, v0)
	}
	mustReject(t, r.ApplyMove("r1", "p1", mv("d2d4")), ErrNotYourTurn)
	if v := r.Snapshot("r1").Version; v != acc.Snapshot.Version {
		t.Fatalf("rejection bumped version to %d", v)
	}
	r.ResetSession("r1")
	if v := r.Snapshot("r1").Version; v <= acc.Snapshot.Version {
		t.Fatalf("reset did not bump version: %d", v)
	}
}

func TestFoolsMateThroughRegistry(t *testing.T) {
	r := newTwoSeatRoom(t, "r1")
	mustAccept(t, r.ApplyMove("r1", "p1", mv("f2f3")))
	mustAccept(t, r.ApplyMove("r1", "p2", mv("e7e5")))
	mustAccept(t, r.ApplyMove("r1", "p1", mv("g2g4")))
	acc := mustAccept(t, r.ApplyMove("r1", "p2", mv("d8h4")))
	if !acc.Snapshot.IsCheckmate || !acc.Snapshot.IsGameOver {
		t.Fatalf("expected checkmate, got %+v", acc.Snapshot)
	}
	if acc.Snapshot.Result != "0-1" || acc.Snapshot.Termination != "checkmate" {
		t.Fatalf("result=%q termination=%q", acc.Snapshot.Result, acc.Snapshot.Termination)
	}
	mustReject(t, r.ApplyMove("r1", "p1", mv("e2e4")), ErrIllegalMove)
}

func TestSeatOrderAndSpectator(t *testing.T) {
	r := NewRegistry()
	r.CreateSession("r1", HumanVsHuman, "")
	got := []Color{
		r.AddOccupant("r1", Occupant{ConnectionID: "a"}),
		r.AddOccupant("r1", Occupant{ConnectionID: "b"}),
		r.AddOccupant("r1", Occupant{ConnectionID: "c"}),
	}
	want := []Color{White, Black, Spectator}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("seats=%v want %v", got, want)
	}
	if c := r.AddOccupant("r1", Occupant{ConnectionID: "a"}); c != White {
		t.Fatalf("rejoin seat=%q want white", c)
	}
	if c := r.AddOccupant("missing", Occupant{ConnectionID: "a"}); c != Spectator {
		t.Fatalf("unknown room seat=%q want spectator", c)
	}
}

func TestRemoveOccupantVacatesSeat(t *testing.T) {
	r := newTwoSeatRoom(t, "r1")
	if c := r.RemoveOccupant("r1", "p1"); c != White {
		t.Fatalf("removed=%q want white", c)
	}
	if c := r.RemoveOccupant("r1", "p1"); c != Spectator {
		t.Fatalf("second removal=%q want none", c)
	}
	r.RemoveOccupant("missing", "p1")
	if c := r.AddOccupant("r1", Occupant{ConnectionID: "p3"}); c != White {
		t.Fatalf("p3 seat=%q want white", c)
	}
	snap := r.Snapshot("r1")
	if snap.Seats.White != "p3" || snap.Seats.Black != "p2" {
		t.Fatalf("seats=%+v", snap.Seats)
	}
}

func TestCreateSessionIsIdempotent(t *testing.T) {
	r := newTwoSeatRoom(t, "r1")
	mustAccept(t, r.ApplyMove("r1", "p1", mv("e2e4")))
	if r.CreateSession("r1", HumanVsBot, bot.Hard) {
		t.Fatalf("second create should be a no-op")
	}
	snap := r.Snapshot("r1")
	if snap.IsBotGame || len(snap.MoveHistory) != 1 {
		t.Fatalf("existing session was overwritten: %+v", snap)
	}
}

func TestResetPreservesSeats(t *testing.T) {
	r := newTwoSeatRoom(t, "r1")
	mustAccept(t, r.ApplyMove("r1", "p1", mv("e2e4")))
	if !r.ResetSession("r1") {
		t.Fatalf("reset returned false")
	}
	snap := r.Snapshot("r1")
	if len(snap.MoveHistory) != 0 || snap.SideToMove != "w" {
		t.Fatalf("reset did not restore start: %+v", snap)
	}
	if snap.Seats.White != "p1" || snap.Seats.Black != "p2" {
		t.Fatalf("seats lost on reset: %+v", snap.Seats)
	}
	if r.ResetSession("missing") {
		t.Fatalf("reset of unknown room should be false")
	}
}

func TestDestroyCancelsPendingReply(t *testing.T) {
	r := NewRegistry()
	r.CreateSession("r1", HumanVsBot, bot.Easy)
	tm := &stubTimer{}
	if !r.ArmBotReply("r1", tm) {
		t.Fatalf("arm failed")
	}
	if !r.DestroySession("r1") {
		t.Fatalf("destroy returned false")
	}
	if !tm.stopped.Load() {
		t.Fatalf("pending reply not canceled on destroy")
	}
	if r.DestroySession("r1") {
		t.Fatalf("second destroy should be false")
	}
	if _, ok := r.BeginBotReply("r1", tm); ok {
		t.Fatalf("late callback claimed a destroyed session")
	}
	if r.Snapshot("r1") != nil {
		t.Fatalf("destroyed session still visible")
	}
}

func TestArmReplacesPreviousReply(t *testing.T) {
	r := NewRegistry()
	r.CreateSession("r1", HumanVsBot, bot.Easy)
	first, second := &stubTimer{}, &stubTimer{}
	r.ArmBotReply("r1", first)
	r.ArmBotReply("r1", second)
	if !first.stopped.Load() || second.stopped.Load() {
		t.Fatalf("expected only the first timer stopped")
	}
	if _, ok := r.BeginBotReply("r1", first); ok {
		t.Fatalf("superseded timer must not claim the turn")
	}
	r.ClearBotReply("r1")
	r.ClearBotReply("r1")
	if !second.stopped.Load() || r.HasPendingBotReply("r1") {
		t.Fatalf("clear did not cancel pending reply")
	}
	other := &stubTimer{}
	if r.ArmBotReply("missing", other) || !other.stopped.Load() {
		t.Fatalf("arming an unknown room should stop the timer and fail")
	}
}

func newBotRoom(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.CreateSession("b1", HumanVsBot, bot.Medium)
	if c := r.AddOccupant("b1", Occupant{ConnectionID: "human"}); c != White {
		t.Fatalf("human seat=%q", c)
	}
	if c := r.AddOccupant("b1", Occupant{ConnectionID: "bot:b1", UserID: "Bot", IsBot: true}); c != Black {
		t.Fatalf("bot seat=%q", c)
	}
	return r
}

func TestBotReplyClaimAndApply(t *testing.T) {
	r := newBotRoom(t)
	if r.BotToMove("b1") {
		t.Fatalf("bot should not be on turn at start")
	}
	mustAccept(t, r.ApplyMove("b1", "human", mv("e2e4")))
	if !r.BotToMove("b1") {
		t.Fatalf("bot should be on turn after white moves")
	}
	tm := &stubTimer{}
	r.ArmBotReply("b1", tm)
	turn, ok := r.BeginBotReply("b1", tm)
	if !ok {
		t.Fatalf("claim failed")
	}
	if r.HasPendingBotReply("b1") {
		t.Fatalf("claim should clear the pending reply")
	}
	if _, ok := r.BeginBotReply("b1", tm); ok {
		t.Fatalf("a timer may claim only once")
	}
	acc := mustAccept(t, r.ApplyBotMove(turn, mv("e7e5")))
	if acc.ConnectionID != "bot:b1" || acc.Snapshot.SideToMove != "w" {
		t.Fatalf("unexpected bot result: %+v", acc)
	}
}

func TestBotReplyRejectedAfterReset(t *testing.T) {
	r := newBotRoom(t)
	mustAccept(t, r.ApplyMove("b1", "human", mv("e2e4")))
	tm := &stubTimer{}
	r.ArmBotReply("b1", tm)
	turn, ok := r.BeginBotReply("b1", tm)
	if !ok {
		t.Fatalf("claim failed")
	}
	r.ResetSession("b1")
	mustReject(t, r.ApplyBotMove(turn, mv("e7e5")), ErrStaleReply)

	r.DestroySession("b1")
	r.CreateSession("b1", HumanVsBot, bot.Medium)
	mustReject(t, r.ApplyBotMove(turn, mv("e7e5")), ErrStaleReply)
}

func TestConcurrentMovesOnlyOneWins(t *testing.T) {
	for round := 0; round < 20; round++ {
		r := newTwoSeatRoom(t, "r1")
		var wg sync.WaitGroup
		var accepted, notYourTurn atomic.Int32
		moves := []string{"e2e4", "d2d4", "g1f3", "c2c4", "b1c3", "e2e3"}
		for _, m := range moves {
			wg.Add(1)
			go func(m string) {
				defer wg.Done()
				switch res := r.ApplyMove("r1", "p1", mv(m)).(type) {
				case Accepted:
					accepted.Add(1)
				case Rejected:
					if res.Reason == ErrNotYourTurn {
						notYourTurn.Add(1)
					}
				}
			}(m)
		}
		wg.Wait()
		if accepted.Load() != 1 || notYourTurn.Load() != int32(len(moves)-1) {
			t.Fatalf("round %d: accepted=%d notYourTurn=%d", round, accepted.Load(), notYourTurn.Load())
		}
		if n := len(r.Snapshot("r1").MoveHistory); n != 1 {
			t.Fatalf("round %d: history length %d", round, n)
		}
	}
}
