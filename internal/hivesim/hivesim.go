// Package hivesim is an in-memory hive server speaking the hivesync
// wire contract. It exists for integration tests and local
// development (hivesync serve); it is not a production server.
package hivesim

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/focushive/hivesync/pkg/protocol"
)

// Server accepts websocket connections scoped to a hive and fans
// hive events out to every member.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	hives map[string]*hive

	sessions atomic.Uint64
}

// New creates a simulator server.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		hives: make(map[string]*hive),
	}
}

// Handler returns the HTTP surface: the websocket endpoint, a health
// probe, and Prometheus metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/sync/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Stats returns the number of active hives and members.
func (s *Server) Stats() (hives, members int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hives = len(s.hives)
	for _, h := range s.hives {
		members += h.memberCount()
	}
	return hives, members
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	hiveID := r.URL.Query().Get("hive")
	if hiveID == "" {
		http.Error(w, "missing hive parameter", http.StatusBadRequest)
		return
	}
	clientID := r.URL.Query().Get("client")

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	sessionID := fmt.Sprintf("sim-%d", s.sessions.Add(1))
	if clientID == "" {
		clientID = sessionID
	}

	m := &member{id: clientID, session: sessionID, ws: ws}
	if err := m.sendWelcome(sessionID, hiveID); err != nil {
		s.logger.Error("welcome failed", "error", err)
		ws.Close()
		return
	}

	h := s.hive(hiveID)
	h.register(m)
	s.logger.Info("member joined", "hive", hiveID, "client", clientID, "members", h.memberCount())

	s.readLoop(h, m)

	h.unregister(m)
	ws.Close()
	s.logger.Info("member left", "hive", hiveID, "client", clientID, "members", h.memberCount())
	s.reap(hiveID)
}

func (s *Server) hive(id string) *hive {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hives[id]
	if !ok {
		h = newHive(id, s.logger)
		s.hives[id] = h
	}
	return h
}

func (s *Server) reap(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.hives[id]; ok && h.memberCount() == 0 {
		delete(s.hives, id)
	}
}

func (s *Server) readLoop(h *hive, m *member) {
	for {
		_, msg, err := m.ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := protocol.DecodeEnvelope(msg)
		if err != nil {
			s.logger.Warn("malformed envelope", "client", m.id, "error", err)
			continue
		}
		h.apply(m, env)
		if env.Type == protocol.ActionLeaveHive {
			return
		}
	}
}
