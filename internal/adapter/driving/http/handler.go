package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Wyydra/devmeet/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/devmeet/internal/core/domain"
	"github.com/Wyydra/devmeet/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Options struct {
	StaticDir      string
	AllowedOrigins []string
	ICEServers     []webrtc.ICEServer
	WebSocket      ws.Options
	// Inbound frames per second per connection. Zero disables the limit.
	MessagesPerSecond float64
	Burst             int
}

type Handler struct {
	Relay   *service.RelayService
	Hub     *ws.Hub
	Metrics http.Handler

	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(relay *service.RelayService, hub *ws.Hub, metrics http.Handler, opts Options) *Handler {
	h := &Handler{
		Relay:   relay,
		Hub:     hub,
		Metrics: metrics,
		opts:    opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/ws", h.ServeWS)
	r.Get("/healthz", h.health)
	r.Get("/ice", h.iceServers)
	r.Get("/rooms", h.listRooms)
	r.Get("/rooms/{roomID}", h.getRoom)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	if h.opts.StaticDir != "" {
		fs := http.FileServer(http.Dir(h.opts.StaticDir))
		r.Handle("/*", fs)
	}

	return r
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Not a browser.
		return true
	}
	for _, allowed := range h.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	log.Warn().Str("origin", origin).Msg("Rejected websocket origin")
	return false
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Signaling server is healthy."))
}

func (h *Handler) iceServers(w http.ResponseWriter, r *http.Request) {
	servers := h.opts.ICEServers
	if servers == nil {
		servers = []webrtc.ICEServer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
}

type roomSummary struct {
	ID      domain.RoomID `json:"id"`
	Members int           `json:"members"`
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms := h.Relay.Rooms()
	out := make([]roomSummary, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, roomSummary{ID: room.ID, Members: len(room.Members)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": out,
		"stats": h.Relay.Stats(),
	})
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRoomID(chi.URLParam(r, "roomID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	room, ok := h.Relay.Room(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
