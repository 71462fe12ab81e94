package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/roomsync/go/internal/models"
	"github.com/mcdev12/roomsync/go/internal/session"
	"github.com/rs/zerolog/log"
)

// RoomSession is the part of a session the gateway drives
type RoomSession interface {
	View() *session.View
	Submit(cmd session.Command) <-chan error
}

// StatsProvider exposes session counters
type StatsProvider interface {
	Stats() session.Stats
}

// StateHandler handles HTTP requests for room state
type StateHandler struct {
	room    RoomSession
	stats   StatsProvider
	manager *ConnectionManager
}

// NewStateHandler creates a new state handler
func NewStateHandler(room RoomSession, stats StatsProvider, manager *ConnectionManager) *StateHandler {
	return &StateHandler{room: room, stats: stats, manager: manager}
}

// HandleGetRoomState handles GET /api/room/state
func (h *StateHandler) HandleGetRoomState(w http.ResponseWriter, r *http.Request) {
	view := h.room.View()
	if view == nil {
		http.Error(w, "room not ready", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleGetRecord handles GET /api/room/records/{id}
func (h *StateHandler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := models.PeerID(chi.URLParam(r, "id"))
	if id == "" {
		http.Error(w, "peer id is required", http.StatusBadRequest)
		return
	}
	view := h.room.View()
	if view == nil {
		http.Error(w, "room not ready", http.StatusServiceUnavailable)
		return
	}
	rec, ok := view.Record(id)
	if !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleGetStats handles GET /api/room/stats
func (h *StateHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"connections": h.manager.ConnectionCount(),
	}
	if h.stats != nil {
		body["session"] = h.stats.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// HandleRoomConnection handles WebSocket upgrades on GET /ws/room
func (h *StateHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "anonymous"
	}
	if err := h.manager.UpgradeConnection(w, r, name); err != nil {
		// the upgrader has already replied to the client
		log.Error().Err(err).Str("name", name).Msg("failed to upgrade WebSocket connection")
	}
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Error().Err(err).Msg("failed to write health check response")
	}
}

// Routes builds the gateway router
func (h *StateHandler) Routes(query *QueryService) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", healthz)
	r.Get("/ws/room", h.HandleRoomConnection)
	r.Route("/api/room", func(r chi.Router) {
		r.Get("/state", h.HandleGetRoomState)
		r.Get("/records/{id}", h.HandleGetRecord)
		r.Get("/stats", h.HandleGetStats)
		r.Get("/schema", h.HandleGetSchema)
	})
	if query != nil {
		path, handler := query.Handler()
		r.Mount(path, handler)
	}
	return r
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
