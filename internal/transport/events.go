package transport

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/bot"
	"github.com/park285/chess-rooms/internal/config"
	"github.com/park285/chess-rooms/internal/matchmaking"
	"github.com/park285/chess-rooms/internal/obslog"
	"github.com/park285/chess-rooms/internal/rules"
	"github.com/park285/chess-rooms/internal/session"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

const (
	codeBadRequest   = "bad_request"
	codeUnknownEvent = "unknown_event"
	codeRoomNotFound = "room_not_found"
)

func errorEvent(code, msg string) roomdto.ErrorEvent {
	return roomdto.ErrorEvent{Type: roomdto.EventError, Error: roomdto.DomainError{Code: code, Message: msg}}
}

func seatName(c session.Color) string {
	if c == session.Spectator {
		return roomdto.SeatSpectator
	}
	return string(c)
}

func (h *Hub) dispatch(connID string, in roomdto.Inbound) {
	switch in.Type {
	case roomdto.EventJoinRoom:
		h.joinRoom(connID, in)
	case roomdto.EventLeaveRoom:
		h.leaveRoom(connID, in)
	case roomdto.EventMove:
		h.move(connID, in)
	case roomdto.EventReset:
		h.reset(connID, in)
	case roomdto.EventEnqueue:
		h.enqueue(connID, in)
	case roomdto.EventDequeue:
		h.dequeue(connID)
	default:
		obslog.L().Debug("ws_unknown_event", zap.String("connection_id", connID), zap.String("type", in.Type))
		h.sendTo(connID, errorEvent(codeUnknownEvent, "unknown event type: "+in.Type))
	}
}

func (h *Hub) joinRoom(connID string, in roomdto.Inbound) {
	roomID := strings.TrimSpace(in.RoomID)
	if roomID == "" {
		h.sendTo(connID, errorEvent(codeBadRequest, "roomId is required"))
		return
	}
	mode, difficulty := session.HumanVsHuman, bot.Difficulty("")
	if in.IsBotGame {
		mode, difficulty = session.HumanVsBot, bot.ParseDifficulty(in.BotDifficulty)
	}
	h.reg.CreateSession(roomID, mode, difficulty)

	// Arriving in the room a match assigned completes the handoff.
	if matched, ok := h.queue.MatchedRoom(connID); ok && matched == roomID {
		h.queue.RemoveFromMatch(connID)
	}

	color := h.reg.AddOccupant(roomID, session.Occupant{ConnectionID: connID, UserID: strings.TrimSpace(in.UserID)})
	if info, ok := h.reg.Info(roomID); ok && info.Mode == session.HumanVsBot && color != session.Spectator {
		h.reg.AddOccupant(roomID, session.Occupant{ConnectionID: botConnectionID(roomID), UserID: botUserID, IsBot: true})
	}
	h.subscribe(roomID, connID)

	snap := h.reg.Snapshot(roomID)
	if snap == nil {
		h.unsubscribe(roomID, connID)
		h.sendTo(connID, errorEvent(codeRoomNotFound, string(session.ErrRoomNotFound)))
		return
	}
	seat := seatName(color)
	h.sendTo(connID, roomdto.JoinedRoom{Type: roomdto.EventJoinedRoom, RoomID: roomID, SeatColor: seat, Snapshot: snap})
	if !snap.IsBotGame {
		h.broadcast(roomID, roomdto.PlayerJoined{Type: roomdto.EventPlayerJoined, RoomID: roomID, SeatColor: seat, Snapshot: snap}, connID)
	}
	h.mirrorSnapshot(snap)
	h.sched.MaybeSchedule(roomID)
}

func (h *Hub) leaveRoom(connID string, in roomdto.Inbound) {
	roomID := strings.TrimSpace(in.RoomID)
	if roomID == "" {
		h.sendTo(connID, errorEvent(codeBadRequest, "roomId is required"))
		return
	}
	h.vacate(roomID, connID)
}

// vacate frees connID's seat and membership in roomID. The room is destroyed
// once no connection is left in it.
func (h *Hub) vacate(roomID, connID string) {
	if matched, ok := h.queue.MatchedRoom(connID); ok && matched == roomID {
		h.queue.RemoveFromMatch(connID)
	}
	h.reg.RemoveOccupant(roomID, connID)
	if h.unsubscribe(roomID, connID) == 0 {
		if h.reg.DestroySession(roomID) {
			h.dropRoom(roomID)
			h.mirrorDelete(roomID)
		}
		return
	}
	snap := h.reg.Snapshot(roomID)
	h.broadcast(roomID, roomdto.PlayerLeft{Type: roomdto.EventPlayerLeft, RoomID: roomID, ConnectionID: connID, Snapshot: snap}, "")
	h.mirrorSnapshot(snap)
}

// disconnect applies the configured policy to a connection that went away.
func (h *Hub) disconnect(connID string) {
	if h.queue.Leave(connID) {
		h.mirrorQueue()
	}
	h.queue.RemoveFromMatch(connID)
	for _, roomID := range h.roomsOf(connID) {
		if h.policy == config.DisconnectReserve {
			// Seats are held for the members still watching; an empty room has nobody to hold them for.
			if h.unsubscribe(roomID, connID) == 0 && h.reg.DestroySession(roomID) {
				h.dropRoom(roomID)
				h.mirrorDelete(roomID)
			}
			continue
		}
		h.vacate(roomID, connID)
	}
}

func (h *Hub) move(connID string, in roomdto.Inbound) {
	roomID := strings.TrimSpace(in.RoomID)
	if in.MoveSpec == nil {
		h.sendTo(connID, roomdto.MoveRejected{Type: roomdto.EventMoveRejected, RoomID: roomID, Reason: string(session.ErrIllegalMove)})
		return
	}
	spec := rules.MoveSpec{From: in.MoveSpec.From, To: in.MoveSpec.To, Promotion: in.MoveSpec.Promotion}
	switch res := h.reg.ApplyMove(roomID, connID, spec).(type) {
	case session.Accepted:
		h.publishMove(roomID, res)
	case session.Rejected:
		h.sendTo(connID, roomdto.MoveRejected{Type: roomdto.EventMoveRejected, RoomID: roomID, Reason: string(res.Reason)})
	}
}

// onBotMove is the scheduler's callback; bot moves fan out exactly like human ones.
func (h *Hub) onBotMove(roomID string, acc session.Accepted) {
	h.publishMove(roomID, acc)
}

func (h *Hub) publishMove(roomID string, acc session.Accepted) {
	h.broadcast(roomID, roomdto.MoveMade{
		Type:         roomdto.EventMoveMade,
		RoomID:       roomID,
		ConnectionID: acc.ConnectionID,
		MoveSpec:     roomdto.MoveSpec{From: acc.Spec.From, To: acc.Spec.To, Promotion: acc.Spec.Promotion},
		Move:         toMoveRecord(acc.Move),
		Snapshot:     acc.Snapshot,
	}, "")
	h.mirrorSnapshot(acc.Snapshot)
	if acc.Snapshot.IsGameOver {
		h.recordFinished(roomID, acc.Snapshot)
		return
	}
	h.sched.MaybeSchedule(roomID)
}

func toMoveRecord(m rules.MoveRecord) roomdto.MoveRecord {
	return roomdto.MoveRecord{
		Color:     string(m.Color),
		From:      m.From,
		To:        m.To,
		Piece:     m.Piece,
		SAN:       m.SAN,
		Captured:  m.Captured,
		Promotion: m.Promotion,
	}
}

func (h *Hub) reset(connID string, in roomdto.Inbound) {
	roomID := strings.TrimSpace(in.RoomID)
	if !h.reg.ResetSession(roomID) {
		h.sendTo(connID, errorEvent(codeRoomNotFound, string(session.ErrRoomNotFound)))
		return
	}
	snap := h.reg.Snapshot(roomID)
	if snap == nil {
		return
	}
	h.broadcast(roomID, roomdto.GameReset{Type: roomdto.EventGameReset, RoomID: roomID, Snapshot: snap}, "")
	h.mirrorSnapshot(snap)
	h.sched.MaybeSchedule(roomID)
}

func (h *Hub) enqueue(connID string, in roomdto.Inbound) {
	self := matchmaking.Entry{
		ConnectionID: connID,
		UserID:       strings.TrimSpace(in.UserID),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		JoinedAt:     time.Now(),
	}
	res := h.queue.Join(self.ConnectionID, self.UserID, self.DisplayName)
	if !res.Matched {
		h.sendTo(connID, roomdto.Queued{Type: roomdto.EventQueued, QueueLength: h.queue.Len()})
		h.mirrorQueue()
		return
	}

	roomID, opp := res.RoomID, res.Opponent
	h.reg.CreateSession(roomID, session.HumanVsHuman, "")
	white := h.reg.AddOccupant(roomID, session.Occupant{ConnectionID: opp.ConnectionID, UserID: opp.UserID})
	black := h.reg.AddOccupant(roomID, session.Occupant{ConnectionID: connID, UserID: self.UserID})
	if !h.subscribeLive(roomID, opp.ConnectionID) {
		// The opponent went away after being popped; drop the room and try the line again.
		obslog.L().Info("matchmaking_opponent_gone", zap.String("room_id", roomID), zap.String("opponent_id", opp.ConnectionID))
		h.reg.DestroySession(roomID)
		h.queue.RemoveFromMatch(opp.ConnectionID)
		h.queue.RemoveFromMatch(connID)
		h.enqueue(connID, in)
		return
	}
	h.subscribe(roomID, connID)

	h.sendTo(opp.ConnectionID, roomdto.MatchFound{Type: roomdto.EventMatchFound, RoomID: roomID, SeatColor: seatName(white), Opponent: toQueueEntry(self)})
	h.sendTo(connID, roomdto.MatchFound{Type: roomdto.EventMatchFound, RoomID: roomID, SeatColor: seatName(black), Opponent: toQueueEntry(opp)})
	h.mirrorSnapshot(h.reg.Snapshot(roomID))
	h.mirrorQueue()
}

func (h *Hub) dequeue(connID string) {
	removed := h.queue.Leave(connID)
	h.sendTo(connID, roomdto.Dequeued{Type: roomdto.EventDequeued, Removed: removed})
	if removed {
		h.mirrorQueue()
	}
}
