// Package matchmaking pairs waiting connections into fresh rooms in arrival order.
package matchmaking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/obslog"
)

// Entry is one waiting connection.
type Entry struct {
	ConnectionID string
	UserID       string
	DisplayName  string
	JoinedAt     time.Time
}

// JoinResult reports the outcome of Join. Opponent is set only when Matched.
type JoinResult struct {
	Matched  bool
	RoomID   string
	Opponent Entry
}

type staticErr string

func (e staticErr) Error() string { return string(e) }

// ErrAlreadyQueued marks a duplicate Join. Join degrades it to a not-matched result.
const ErrAlreadyQueued = staticErr("already queued")

// Queue is a FIFO waiting line plus the connection -> room records of recent matches.
type Queue struct {
	mu      sync.Mutex
	waiting []Entry
	matched map[string]string
	now     func() time.Time
	newRoom func(now time.Time) string
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithRoomIDs overrides room id generation.
func WithRoomIDs(gen func(now time.Time) string) Option {
	return func(q *Queue) { q.newRoom = gen }
}

func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		matched: make(map[string]string),
		now:     time.Now,
		newRoom: defaultRoomID,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func defaultRoomID(now time.Time) string {
	return fmt.Sprintf("match-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// Join pairs connectionID with the oldest waiter, or enqueues it when nobody waits.
// A connection already in the queue is left alone and reported as not matched.
func (q *Queue) Join(connectionID, userID, displayName string) JoinResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexLocked(connectionID) >= 0 {
		obslog.L().Debug("matchmaking_join_duplicate", zap.String("connection_id", connectionID), zap.Error(ErrAlreadyQueued))
		return JoinResult{}
	}
	now := q.now()
	if len(q.waiting) > 0 {
		opponent := q.waiting[0]
		q.waiting[0] = Entry{}
		q.waiting = q.waiting[1:]
		roomID := q.newRoom(now)
		q.matched[connectionID] = roomID
		q.matched[opponent.ConnectionID] = roomID
		obslog.L().Info("matchmaking_match",
			zap.String("room_id", roomID),
			zap.String("connection_id", connectionID),
			zap.String("opponent_id", opponent.ConnectionID),
			zap.Duration("opponent_wait", now.Sub(opponent.JoinedAt)),
		)
		return JoinResult{Matched: true, RoomID: roomID, Opponent: opponent}
	}
	q.waiting = append(q.waiting, Entry{
		ConnectionID: connectionID,
		UserID:       userID,
		DisplayName:  displayName,
		JoinedAt:     now,
	})
	obslog.L().Info("matchmaking_enqueue", zap.String("connection_id", connectionID), zap.Int("queue_length", len(q.waiting)))
	return JoinResult{}
}

// Leave removes connectionID from the waiting line only; match records stay.
func (q *Queue) Leave(connectionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexLocked(connectionID)
	if i < 0 {
		return false
	}
	q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
	obslog.L().Info("matchmaking_leave", zap.String("connection_id", connectionID))
	return true
}

// RemoveFromMatch drops the match record of connectionID.
func (q *Queue) RemoveFromMatch(connectionID string) {
	q.mu.Lock()
	delete(q.matched, connectionID)
	q.mu.Unlock()
}

func (q *Queue) IsQueued(connectionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.indexLocked(connectionID) >= 0
}

func (q *Queue) IsMatched(connectionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.matched[connectionID]
	return ok
}

// MatchedRoom returns the room connectionID was matched into, if it still has a record.
func (q *Queue) MatchedRoom(connectionID string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	roomID, ok := q.matched[connectionID]
	return roomID, ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waiting)
}

// Snapshot returns the waiting entries, oldest first.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Entry, len(q.waiting))
	copy(out, q.waiting)
	return out
}

// SweepStale removes entries that have waited longer than maxWait and returns how many.
func (q *Queue) SweepStale(maxWait time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	kept := q.waiting[:0]
	removed := 0
	for _, e := range q.waiting {
		if now.Sub(e.JoinedAt) > maxWait {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.waiting); i++ {
		q.waiting[i] = Entry{}
	}
	q.waiting = kept
	if removed > 0 {
		obslog.L().Info("matchmaking_sweep", zap.Int("removed", removed), zap.Int("queue_length", len(kept)))
	}
	return removed
}

// RunSweeper calls SweepStale every interval until ctx is done.
func (q *Queue) RunSweeper(ctx context.Context, interval, maxWait time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			q.SweepStale(maxWait)
		}
	}
}

func (q *Queue) indexLocked(connectionID string) int {
	for i, e := range q.waiting {
		if e.ConnectionID == connectionID {
			return i
		}
	}
	return -1
}
