// Package session implements the per-connection half of the hub: each
// ClientSession owns one upgraded WebSocket, decoding inbound frames
// and handing them to its Room, and draining an outbound queue back to
// the client. The read/write pump split follows the teacher's
// Session.ReadPump/WritePump (internal/services/collaboration), but
// framing now goes through internal/protocol instead of being
// forwarded as an opaque blob, and liveness is driven by the shared
// HeartbeatScheduler rather than a per-connection read deadline.
package session

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"collabhub/internal/auth"
	"collabhub/internal/logging"
	"collabhub/internal/protocol"
	"collabhub/internal/room"
)

const sendBufferSize = 256

// Room is the consumer-driven slice of room.Room a ClientSession
// needs: just enough to join, leave, and forward frames.
type Room interface {
	Join(s room.Session)
	Leave(s room.Session)
	Dispatch(s room.Session, frame *protocol.Frame)
}

// ClientSession is one live WebSocket connection, implementing
// room.Session so its owning Room can address it directly.
type ClientSession struct {
	id       string
	clientID uint32
	identity *auth.Identity

	conn      *websocket.Conn
	room      Room
	heartbeat *HeartbeatScheduler
	send      chan []byte
	log       zerolog.Logger
	alive     int32 // 1 = seen activity since last heartbeat sweep

	writeMu    sync.Mutex
	closeOnce  sync.Once
	terminated chan struct{}
}

// New wraps an upgraded connection into a session attached to r,
// registered with hb for liveness sweeps.
func New(conn *websocket.Conn, identity *auth.Identity, r Room, hb *HeartbeatScheduler) *ClientSession {
	s := &ClientSession{
		id:         ksuid.New().String(),
		clientID:   randomClientID(),
		identity:   identity,
		conn:       conn,
		room:       r,
		heartbeat:  hb,
		send:       make(chan []byte, sendBufferSize),
		log:        logging.Named("session"),
		alive:      1,
		terminated: make(chan struct{}),
	}
	return s
}

func randomClientID() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	return binary.BigEndian.Uint32(b[:])
}

func (s *ClientSession) ID() string     { return s.id }
func (s *ClientSession) ClientID() uint32 { return s.clientID }
func (s *ClientSession) Role() auth.Role  { return s.identity.Role }

// Send queues payload for delivery. A full buffer means the client is
// too slow (or dead); rather than block the room's loop, the session
// is torn down. Send is called from the room's own loop goroutine
// during a broadcast, so termination — which calls back into the room
// — is kicked off on a separate goroutine to avoid the loop deadlocking
// on itself.
func (s *ClientSession) Send(payload []byte) {
	select {
	case s.send <- payload:
	default:
		s.log.Warn().Str("session", s.id).Msg("send buffer full, terminating session")
		go s.Terminate()
	}
}

// Start registers the session with its room and launches both pumps,
// blocking until the connection ends.
func (s *ClientSession) Start(ctx context.Context) {
	s.room.Join(s)
	if s.heartbeat != nil {
		s.heartbeat.Register(s)
	}
	defer s.Terminate()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writePump()
	}()

	s.readPump(ctx)
	// Terminate closes the send queue, which is what ends writePump.
	s.Terminate()
	wg.Wait()
}

func (s *ClientSession) readPump(ctx context.Context) {
	s.conn.SetPongHandler(func(string) error {
		atomic.StoreInt32(&s.alive, 1)
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		atomic.StoreInt32(&s.alive, 1)

		frame, err := protocol.Decode(data)
		if err != nil {
			s.log.Debug().Err(err).Str("session", s.id).Msg("dropping malformed frame")
			continue
		}

		s.room.Dispatch(s, frame)
	}
}

func (s *ClientSession) writePump() {
	for payload := range s.send {
		if err := s.writeBinary(payload); err != nil {
			return
		}
	}
}

func (s *ClientSession) writeBinary(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Ping sends a control-frame ping, used by the HeartbeatScheduler.
func (s *ClientSession) Ping() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

// Alive reports whether the session has seen activity since the last
// heartbeat sweep cleared the flag.
func (s *ClientSession) Alive() bool {
	return atomic.LoadInt32(&s.alive) == 1
}

// ClearAlive resets the liveness flag ahead of the next ping.
func (s *ClientSession) ClearAlive() {
	atomic.StoreInt32(&s.alive, 0)
}

// Terminate leaves the room, closes the send queue, and closes the
// underlying connection. Safe to call more than once or concurrently.
func (s *ClientSession) Terminate() {
	s.closeOnce.Do(func() {
		if s.heartbeat != nil {
			s.heartbeat.Unregister(s)
		}
		s.room.Leave(s)
		close(s.send)
		close(s.terminated)
		s.conn.Close()
	})
}
