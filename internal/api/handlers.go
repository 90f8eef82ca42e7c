// Package api wires the hub's HTTP surface: session minting, the
// WebSocket connection acceptor, the script-sync endpoint, and a health
// probe. Handlers are thin — the real logic lives in auth, room, and
// session.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"collabhub/internal/auth"
	"collabhub/internal/logging"
	"collabhub/internal/room"
)

// Handler holds everything the HTTP layer needs to mint tokens, verify
// them, and reach the room registry.
type Handler struct {
	verifier    auth.Verifier
	tokenSecret string
	rooms       *room.Manager
	log         zerolog.Logger
}

// NewHandler builds the HTTP handler set.
func NewHandler(verifier auth.Verifier, tokenSecret string, rooms *room.Manager) *Handler {
	return &Handler{
		verifier:    verifier,
		tokenSecret: tokenSecret,
		rooms:       rooms,
		log:         logging.Named("api"),
	}
}

type createSessionRequest struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Role   auth.Role `json:"role"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// CreateSession mints a token for a brand new collaboration session.
// This is a minimal, self-contained stand-in for whatever identity
// provider fronts the hub in a full deployment — it exists so the hub
// is runnable and testable on its own.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Role != auth.RoleView && req.Role != auth.RoleEdit {
		req.Role = auth.RoleEdit
	}

	sessionID := ksuid.New().String()
	token, err := auth.Mint(h.tokenSecret, req.UserID, sessionID, req.Role)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to mint session token")
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: sessionID, Token: token})
}

type joinSessionRequest struct {
	Token string `json:"token"`
}

// JoinSession verifies a token and echoes back the identity it grants,
// letting a client confirm a token is still valid before opening a
// WebSocket.
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req joinSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity, err := h.verifier.Verify(req.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	writeJSON(w, http.StatusOK, identity)
}

type sessionStatusResponse struct {
	Room         string `json:"room"`
	Participants int32  `json:"participants"`
}

// SessionStatus reports how many sessions are currently attached to a
// room, without naming any of them — enough for a "3 people editing"
// indicator without drifting into the moderation tooling the hub
// deliberately leaves out.
func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["id"]

	var count int32
	if rm, ok := h.rooms.Peek(name); ok {
		count = rm.SessionCount()
	}

	writeJSON(w, http.StatusOK, sessionStatusResponse{Room: name, Participants: count})
}

// Health is a liveness probe with no dependency on storage or bus
// reachability — those degrade gracefully on their own.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
