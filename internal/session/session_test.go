package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabhub/internal/auth"
	"collabhub/internal/protocol"
	"collabhub/internal/room"
)

type fakeRoom struct {
	mu       sync.Mutex
	joined   []room.Session
	left     []room.Session
	dispatch []*protocol.Frame
}

func (f *fakeRoom) Join(s room.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, s)
}
func (f *fakeRoom) Leave(s room.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, s)
}
func (f *fakeRoom) Dispatch(s room.Session, frame *protocol.Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatch = append(f.dispatch, frame)
}

func (f *fakeRoom) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatch)
}

func (f *fakeRoom) leftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.left)
}

var upgrader = websocket.Upgrader{}

func TestSessionDispatchesDecodedFrames(t *testing.T) {
	fr := &fakeRoom{}
	var sess *ClientSession

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sess = New(conn, &auth.Identity{UserID: "u1", Role: auth.RoleEdit}, fr, nil)
		go sess.Start(context.Background())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()

	frame := protocol.EncodeSyncStep1([]byte{})
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, frame))

	require.Eventually(t, func() bool {
		return fr.dispatchCount() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionTerminateLeavesRoomOnce(t *testing.T) {
	fr := &fakeRoom{}
	var sess *ClientSession

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		sess = New(conn, &auth.Identity{UserID: "u1", Role: auth.RoleView}, fr, nil)
		go sess.Start(context.Background())
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	client.Close()

	require.Eventually(t, func() bool {
		return fr.leftCount() == 1
	}, time.Second, 10*time.Millisecond)

	sess.Terminate()
	assert.Equal(t, 1, fr.leftCount(), "terminate must be idempotent")
}
