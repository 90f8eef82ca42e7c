package room

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabhub/internal/auth"
	"collabhub/internal/bus"
	"collabhub/internal/protocol"
)

type fakeSession struct {
	id       string
	clientID uint32
	role     auth.Role

	mu  sync.Mutex
	out [][]byte
}

func newFakeSession(id string, clientID uint32, role auth.Role) *fakeSession {
	return &fakeSession{id: id, clientID: clientID, role: role}
}

func (s *fakeSession) ID() string        { return s.id }
func (s *fakeSession) ClientID() uint32   { return s.clientID }
func (s *fakeSession) Role() auth.Role    { return s.role }
func (s *fakeSession) Send(payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, payload)
}

func (s *fakeSession) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.out))
	copy(out, s.out)
	return out
}

type fakeStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{saved: map[string][]byte{}} }

func (f *fakeStore) Load(ctx context.Context, room string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[room], nil
}
func (f *fakeStore) Save(ctx context.Context, room string, state []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[room] = state
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, room)
	return nil
}
func (f *fakeStore) List(ctx context.Context) ([]string, error) { return nil, nil }

func (f *fakeStore) has(room string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.saved[room]
	return ok
}

func testConfig() Config {
	return Config{
		Debounce:         10 * time.Millisecond,
		EvictTimeout:      time.Hour,
		AwarenessTimeout: time.Minute,
	}
}

func TestJoinSendsStateVector(t *testing.T) {
	r := New(context.Background(), "room-1", newFakeStore(), bus.New(""), testConfig(), nil)
	defer r.Stop()

	s := newFakeSession("s1", 1, auth.RoleEdit)
	r.Join(s)

	got := s.received()
	require.Len(t, got, 1)
	frame, err := protocol.Decode(got[0])
	require.NoError(t, err)
	assert.Equal(t, protocol.MessageSync, frame.Type)
	assert.Equal(t, protocol.SyncStep1, frame.SyncSubType)
}

func TestReplaceAllBroadcastsUpdateToSessions(t *testing.T) {
	store := newFakeStore()
	r := New(context.Background(), "room-2", store, bus.New(""), testConfig(), nil)
	defer r.Stop()

	writer := newFakeSession("writer", 1, auth.RoleEdit)
	reader := newFakeSession("reader", 2, auth.RoleEdit)
	r.Join(writer)
	r.Join(reader)

	// Set the content to "hi" through the script-sync path, which applies
	// it as a CRDT update and broadcasts that update to every session.
	changed, _ := r.ReplaceAll("hi")
	assert.True(t, changed)

	// reader should have received: syncStep1 (join) + broadcast update
	got := reader.received()
	require.GreaterOrEqual(t, len(got), 2)

	found := false
	for _, payload := range got {
		frame, err := protocol.Decode(payload)
		require.NoError(t, err)
		if frame.Type == protocol.MessageSync && frame.SyncSubType == protocol.SyncUpdate {
			found = true
		}
	}
	assert.True(t, found, "reader should see the update broadcast")

	time.Sleep(50 * time.Millisecond)
	assert.True(t, store.has("room-2"), "debounced persist should have fired")
}

func TestViewRoleWriteIsDropped(t *testing.T) {
	r := New(context.Background(), "room-3", newFakeStore(), bus.New(""), testConfig(), nil)
	defer r.Stop()

	viewer := newFakeSession("viewer", 1, auth.RoleView)
	r.Join(viewer)

	frame := &protocol.Frame{Type: protocol.MessageSync, SyncSubType: protocol.SyncUpdate, Payload: []byte{0}}
	r.Dispatch(viewer, frame)

	// Give the loop a moment; ReplaceAll as a synchronous probe confirms
	// the document never changed.
	time.Sleep(10 * time.Millisecond)
	text, _ := r.ReplaceAll("")
	assert.False(t, text, "document should still be empty: view write must be dropped")
}

func TestLeaveBroadcastsAwarenessRemoval(t *testing.T) {
	r := New(context.Background(), "room-4", newFakeStore(), bus.New(""), testConfig(), nil)
	defer r.Stop()

	a := newFakeSession("a", 1, auth.RoleEdit)
	b := newFakeSession("b", 2, auth.RoleEdit)
	r.Join(a)
	r.Join(b)

	r.Dispatch(a, &protocol.Frame{Type: protocol.MessageAwareness, AwarenessPayload: encodeTestAwareness(t, 1)})
	time.Sleep(10 * time.Millisecond)

	r.Leave(a)
	time.Sleep(10 * time.Millisecond)

	got := b.received()
	awarenessFrames := 0
	for _, payload := range got {
		frame, err := protocol.Decode(payload)
		require.NoError(t, err)
		if frame.Type == protocol.MessageAwareness {
			awarenessFrames++
		}
	}
	assert.Equal(t, 2, awarenessFrames, "b should see a's awareness state and then its removal")
}

func encodeTestAwareness(t *testing.T, clientID uint32) []byte {
	t.Helper()
	// Minimal hand-rolled delta: count=1, id, clock=1, state="x" (len-prefixed).
	var b []byte
	b = append(b, 1)
	b = append(b, byte(clientID))
	b = append(b, 1)
	state := []byte(`"x"`)
	b = append(b, byte(len(state)))
	b = append(b, state...)
	return b
}
