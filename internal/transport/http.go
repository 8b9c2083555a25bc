package transport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/chess-rooms/internal/obslog"
	"github.com/park285/chess-rooms/pkg/roomdto"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// Routes mounts the WebSocket endpoint and the read-only HTTP API.
func (h *Hub) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws", h.ServeWS)
	r.Get("/health", h.handleHealth)
	r.Get("/api/status", h.handleStatus)
	r.Post("/create-room", h.handleCreateRoom)
	r.Get("/api/rooms", h.handleListRooms)
	r.Get("/api/rooms/{roomID}", h.handleGetRoom)
	r.Get("/api/matchmaking/queue", h.handleQueue)
	r.Get("/api/history", h.handleHistory)
	return r
}

type statusResponse struct {
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
	QueueLength int    `json:"queueLength"`
	Uptime      string `json:"uptime"`
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, map[string]string{"status": "ok"})
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, statusResponse{
		Rooms:       h.reg.Len(),
		Connections: h.Connections(),
		QueueLength: h.queue.Len(),
		Uptime:      time.Since(h.started).Truncate(time.Second).String(),
	})
}

func (h *Hub) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, r, http.StatusCreated, map[string]string{"roomId": "room-" + uuid.NewString()})
}

func (h *Hub) handleListRooms(w http.ResponseWriter, r *http.Request) {
	ids := h.reg.RoomIDs()
	out := make([]*roomdto.Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap := h.reg.Snapshot(id); snap != nil {
			out = append(out, snap)
		}
	}
	writeOK(w, r, out)
}

func (h *Hub) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	snap := h.reg.Snapshot(chi.URLParam(r, "roomID"))
	if snap == nil {
		writeResponse(w, r, http.StatusNotFound, roomdto.DomainError{Code: codeRoomNotFound, Message: "session not found"})
		return
	}
	writeOK(w, r, snap)
}

func (h *Hub) handleQueue(w http.ResponseWriter, r *http.Request) {
	writeOK(w, r, queueEntries(h.queue.Snapshot()))
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.results == nil {
		writeResponse(w, r, http.StatusServiceUnavailable, roomdto.DomainError{Code: "history_disabled", Message: "history storage is not configured"})
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeResponse(w, r, http.StatusBadRequest, roomdto.DomainError{Code: codeBadRequest, Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	recs, err := h.results.Recent(r.Context(), limit)
	if err != nil {
		obslog.L().Warn("history_query_failed", zap.Error(err))
		writeResponse(w, r, http.StatusInternalServerError, roomdto.DomainError{Code: "internal", Message: "history unavailable"})
		return
	}
	writeOK(w, r, recs)
}

func writeOK(w http.ResponseWriter, r *http.Request, body any) {
	writeResponse(w, r, http.StatusOK, body)
}

func writeResponse(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		obslog.L().Debug("http_write_failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
}
