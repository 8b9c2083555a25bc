// Package transport connects WebSocket clients to the room registry, matchmaking and the bot scheduler.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/botsched"
	"github.com/park285/chess-rooms/internal/config"
	"github.com/park285/chess-rooms/internal/history"
	"github.com/park285/chess-rooms/internal/matchmaking"
	"github.com/park285/chess-rooms/internal/notify"
	"github.com/park285/chess-rooms/internal/obslog"
	"github.com/park285/chess-rooms/internal/session"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

// Mirror receives a copy of every broadcast snapshot and of the waiting line.
type Mirror interface {
	SaveSnapshot(ctx context.Context, snap *roomdto.Snapshot) error
	Delete(ctx context.Context, roomID string) error
	SaveQueue(ctx context.Context, entries []roomdto.QueueEntry) error
}

// ResultStore keeps finished games.
type ResultStore interface {
	SaveResult(ctx context.Context, rec *history.Record) error
	Recent(ctx context.Context, limit int) ([]history.Record, error)
}

type Notifier interface {
	GameFinished(ctx context.Context, ev notify.GameFinished) error
}

// Deps wires a Hub. Registry, Queue and Chooser are required; the rest are optional.
type Deps struct {
	Registry *session.Registry
	Queue    *matchmaking.Queue
	Chooser  botsched.Chooser

	Mirror   Mirror
	Results  ResultStore
	Notifier Notifier

	Policy         config.DisconnectPolicy
	AllowedOrigins []string

	// SchedulerOptions are passed to botsched.New after the hub's own move callback.
	SchedulerOptions []botsched.Option
	NewConnID        func() string
}

const (
	botUserID       = "Bot"
	sendBuffer      = 64
	jobBuffer       = 256
	sideEffectLimit = 5 * time.Second
)

func botConnectionID(roomID string) string { return "bot:" + roomID }

type Hub struct {
	reg      *session.Registry
	queue    *matchmaking.Queue
	sched    *botsched.Scheduler
	mirror   Mirror
	results  ResultStore
	notifier Notifier
	policy   config.DisconnectPolicy
	origins  []string
	newID    func() string
	started  time.Time

	mu      sync.RWMutex
	conns   map[string]*client
	members map[string]map[string]struct{} // room -> connections
	joined  map[string]map[string]struct{} // connection -> rooms

	jobs     chan func(context.Context)
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHub(d Deps) *Hub {
	h := &Hub{
		reg:      d.Registry,
		queue:    d.Queue,
		mirror:   d.Mirror,
		results:  d.Results,
		notifier: d.Notifier,
		policy:   d.Policy,
		origins:  d.AllowedOrigins,
		newID:    d.NewConnID,
		started:  time.Now(),
		conns:    make(map[string]*client),
		members:  make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
		jobs:     make(chan func(context.Context), jobBuffer),
		stop:     make(chan struct{}),
	}
	if h.policy != config.DisconnectReserve {
		h.policy = config.DisconnectVacate
	}
	if h.newID == nil {
		h.newID = uuid.NewString
	}
	opts := append([]botsched.Option{botsched.WithOnMove(h.onBotMove)}, d.SchedulerOptions...)
	h.sched = botsched.New(d.Registry, d.Chooser, opts...)

	h.wg.Add(1)
	go h.runJobs()
	return h
}

// Close disconnects every client and flushes queued side effects.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		h.mu.RLock()
		clients := make([]*client, 0, len(h.conns))
		for _, c := range h.conns {
			clients = append(clients, c)
		}
		h.mu.RUnlock()
		for _, c := range clients {
			c.shutdown("server shutdown")
		}
		close(h.stop)
	})
	h.wg.Wait()
}

func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()
	obslog.L().Info("ws_connect", zap.String("connection_id", c.id))
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
	obslog.L().Info("ws_disconnect", zap.String("connection_id", id))
}

// subscribe adds connID to roomID's broadcast set.
func (h *Hub) subscribe(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[roomID] == nil {
		h.members[roomID] = make(map[string]struct{})
	}
	h.members[roomID][connID] = struct{}{}
	if h.joined[connID] == nil {
		h.joined[connID] = make(map[string]struct{})
	}
	h.joined[connID][roomID] = struct{}{}
}

// subscribeLive subscribes connID only while it is still registered. It shares
// h.mu with unregister, so a connection that went away is either refused here or
// already a member when its disconnect runs.
func (h *Hub) subscribeLive(roomID, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[connID]; !ok {
		return false
	}
	if h.members[roomID] == nil {
		h.members[roomID] = make(map[string]struct{})
	}
	h.members[roomID][connID] = struct{}{}
	if h.joined[connID] == nil {
		h.joined[connID] = make(map[string]struct{})
	}
	h.joined[connID][roomID] = struct{}{}
	return true
}

// unsubscribe removes connID from roomID and reports how many members remain.
func (h *Hub) unsubscribe(roomID, connID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rooms := h.joined[connID]; rooms != nil {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(h.joined, connID)
		}
	}
	set := h.members[roomID]
	if set == nil {
		return 0
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.members, roomID)
		return 0
	}
	return len(set)
}

func (h *Hub) roomsOf(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.joined[connID]))
	for id := range h.joined[connID] {
		out = append(out, id)
	}
	return out
}

func (h *Hub) dropRoom(roomID string) {
	h.mu.Lock()
	for connID := range h.members[roomID] {
		if rooms := h.joined[connID]; rooms != nil {
			delete(rooms, roomID)
			if len(rooms) == 0 {
				delete(h.joined, connID)
			}
		}
	}
	delete(h.members, roomID)
	h.mu.Unlock()
}

// sendTo queues v for one connection. Unknown connections are ignored.
func (h *Hub) sendTo(connID string, v any) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c != nil {
		c.enqueue(v)
	}
}

// broadcast queues v for every member of roomID except skip.
func (h *Hub) broadcast(roomID string, v any, skip string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.members[roomID]))
	for connID := range h.members[roomID] {
		if connID == skip {
			continue
		}
		if c := h.conns[connID]; c != nil {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.enqueue(v)
	}
}

// background queues a side effect on the single worker so writes reach external stores in order.
func (h *Hub) background(name string, job func(ctx context.Context)) {
	select {
	case <-h.stop:
		return
	default:
	}
	select {
	case h.jobs <- job:
	default:
		obslog.L().Warn("side_effect_dropped", zap.String("job", name))
	}
}

func (h *Hub) runJobs() {
	defer h.wg.Done()
	run := func(job func(context.Context)) {
		ctx, cancel := context.WithTimeout(context.Background(), sideEffectLimit)
		defer cancel()
		job(ctx)
	}
	for {
		select {
		case job := <-h.jobs:
			run(job)
		case <-h.stop:
			for {
				select {
				case job := <-h.jobs:
					run(job)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) mirrorSnapshot(snap *roomdto.Snapshot) {
	if h.mirror == nil || snap == nil {
		return
	}
	h.background("mirror_snapshot", func(ctx context.Context) {
		if err := h.mirror.SaveSnapshot(ctx, snap); err != nil {
			obslog.L().Warn("mirror_snapshot_failed", zap.String("room_id", snap.RoomID), zap.Error(err))
		}
	})
}

func (h *Hub) mirrorDelete(roomID string) {
	if h.mirror == nil {
		return
	}
	h.background("mirror_delete", func(ctx context.Context) {
		if err := h.mirror.Delete(ctx, roomID); err != nil {
			obslog.L().Warn("mirror_delete_failed", zap.String("room_id", roomID), zap.Error(err))
		}
	})
}

func (h *Hub) mirrorQueue() {
	if h.mirror == nil {
		return
	}
	entries := queueEntries(h.queue.Snapshot())
	h.background("mirror_queue", func(ctx context.Context) {
		if err := h.mirror.SaveQueue(ctx, entries); err != nil {
			obslog.L().Warn("mirror_queue_failed", zap.Error(err))
		}
	})
}

func queueEntries(in []matchmaking.Entry) []roomdto.QueueEntry {
	out := make([]roomdto.QueueEntry, 0, len(in))
	for _, e := range in {
		out = append(out, toQueueEntry(e))
	}
	return out
}

func toQueueEntry(e matchmaking.Entry) roomdto.QueueEntry {
	return roomdto.QueueEntry{
		ConnectionID: e.ConnectionID,
		UserID:       e.UserID,
		DisplayName:  e.DisplayName,
		JoinedAt:     e.JoinedAt,
	}
}

// recordFinished stores and announces a game that just ended.
func (h *Hub) recordFinished(roomID string, snap *roomdto.Snapshot) {
	if snap == nil || !snap.IsGameOver || (h.results == nil && h.notifier == nil) {
		return
	}
	rec := buildRecord(roomID, snap, h.startedAt(roomID), time.Now())
	h.background("record_result", func(ctx context.Context) {
		if h.results != nil {
			if err := h.results.SaveResult(ctx, rec); err != nil {
				obslog.L().Warn("result_save_failed", zap.String("room_id", roomID), zap.Error(err))
			}
		}
		if h.notifier != nil {
			if err := h.notifier.GameFinished(ctx, finishedEvent(rec)); err != nil {
				obslog.L().Warn("result_notify_failed", zap.String("room_id", roomID), zap.Error(err))
			}
		}
	})
	obslog.L().Info("game_over",
		zap.String("room_id", roomID),
		zap.String("result", snap.Result),
		zap.String("termination", snap.Termination),
	)
}

func (h *Hub) startedAt(roomID string) time.Time {
	if info, ok := h.reg.Info(roomID); ok {
		return info.CreatedAt
	}
	return time.Now()
}

func buildRecord(roomID string, snap *roomdto.Snapshot, started, ended time.Time) *history.Record {
	rec := &history.Record{
		ID:            uuid.NewString(),
		RoomID:        roomID,
		IsBotGame:     snap.IsBotGame,
		BotDifficulty: snap.BotDifficulty,
		Result:        snap.Result,
		Termination:   snap.Termination,
		PGN:           snap.MoveLog,
		FEN:           snap.Position,
		MoveCount:     len(snap.MoveHistory),
		StartedAt:     started.UTC(),
		EndedAt:       ended.UTC(),
	}
	if w := snap.SeatDetails.White; w != nil {
		rec.WhiteID, rec.WhiteUser = w.ConnectionID, w.UserID
	}
	if b := snap.SeatDetails.Black; b != nil {
		rec.BlackID, rec.BlackUser = b.ConnectionID, b.UserID
	}
	return rec
}

func finishedEvent(rec *history.Record) notify.GameFinished {
	return notify.GameFinished{
		GameID:        rec.ID,
		RoomID:        rec.RoomID,
		Result:        rec.Result,
		Termination:   rec.Termination,
		PGN:           rec.PGN,
		FEN:           rec.FEN,
		WhiteID:       rec.WhiteUser,
		BlackID:       rec.BlackUser,
		IsBotGame:     rec.IsBotGame,
		BotDifficulty: rec.BotDifficulty,
		EndedAt:       rec.EndedAt,
	}
}
