package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"collabhub/internal/middleware"
	"collabhub/internal/session"
)

// upgrader accepts any origin at the protocol level; CORSMiddleware and
// the token check below are what actually gate access, matching the
// teacher's split between transport-level upgrade and application-level
// auth.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Acceptor upgrades a connection to a WebSocket, verifies its bearer
// token, and attaches the resulting session to the named room.
type Acceptor struct {
	handler   *Handler
	heartbeat *session.HeartbeatScheduler
}

// NewAcceptor builds the WebSocket connection acceptor.
func NewAcceptor(h *Handler, hb *session.HeartbeatScheduler) *Acceptor {
	return &Acceptor{handler: h, heartbeat: hb}
}

// ServeWS handles GET /ws/{room}.
func (a *Acceptor) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomName := mux.Vars(r)["room"]
	if roomName == "" {
		roomName = "default"
	}

	token := bearerToken(r)
	identity, err := a.handler.verifier.Verify(token)
	if err != nil {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}

	ctx, span := middleware.StartSpan(r.Context(), "WebSocket.Connect")
	defer span.End()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return
	}

	rm := a.handler.rooms.GetOrCreate(r.Context(), roomName)
	sess := session.New(conn, identity, rm, a.heartbeat)
	go sess.Start(r.Context())
}

// bearerToken reads the token from the Authorization header first, then
// falls back to a ?token= query parameter for clients that can't set
// headers on a WebSocket handshake.
func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
