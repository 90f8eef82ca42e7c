package api

import (
	"collabhub/internal/middleware"
	"collabhub/internal/session"

	"github.com/gorilla/mux"
)

// SetupRoutes wires the hub's HTTP and WebSocket surface.
func SetupRoutes(h *Handler, hb *session.HeartbeatScheduler, corsOrigin string) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware(corsOrigin))

	r.HandleFunc("/health", h.Health).Methods("GET")

	r.HandleFunc("/session/create", h.CreateSession).Methods("POST")
	r.HandleFunc("/session/join", h.JoinSession).Methods("POST")
	r.HandleFunc("/session/{id}/status", h.SessionStatus).Methods("GET")

	r.HandleFunc("/api/mcp/sync-script", h.SyncScript).Methods("POST")

	acceptor := NewAcceptor(h, hb)
	r.HandleFunc("/ws/{room}", acceptor.ServeWS)
	r.HandleFunc("/ws", acceptor.ServeWS)

	return r
}
