package awareness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLocalStateThenEncodeFor(t *testing.T) {
	s := New()
	d := s.SetLocalState(7, json.RawMessage(`{"name":"A"}`))
	assert.Equal(t, []uint32{7}, d.Added)

	payload := s.EncodeFor([]uint32{7})
	other := New()
	delta, err := other.ApplyDelta(payload)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, delta.Added)
	assert.JSONEq(t, `{"name":"A"}`, string(other.All()[7]))
}

func TestApplyDeltaLastWriterWinsByClock(t *testing.T) {
	s := New()
	s.SetLocalState(1, json.RawMessage(`"first"`))

	// A stale delta with the same clock must not overwrite.
	other := New()
	other.SetLocalState(1, json.RawMessage(`"second"`))
	payload := other.EncodeFor([]uint32{1})
	_, err := s.ApplyDelta(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `"first"`, string(s.All()[1]))
}

func TestRemoveBroadcastsHigherClockEmptyState(t *testing.T) {
	s := New()
	s.SetLocalState(3, json.RawMessage(`"x"`))
	payload := s.Remove([]uint32{3})
	assert.True(t, s.Empty())

	other := New()
	other.SetLocalState(3, json.RawMessage(`"x"`))
	delta, err := other.ApplyDelta(payload)
	require.NoError(t, err)
	assert.Equal(t, []uint32{3}, delta.Removed)
	assert.True(t, other.Empty())
}

func TestGCRemovesStaleEntries(t *testing.T) {
	s := New()
	s.SetLocalState(5, json.RawMessage(`"x"`))
	time.Sleep(5 * time.Millisecond)
	removed := s.GC(time.Millisecond)
	assert.Contains(t, removed, uint32(5))
	assert.True(t, s.Empty())
}

func TestGCKeepsFreshEntries(t *testing.T) {
	s := New()
	s.SetLocalState(5, json.RawMessage(`"x"`))
	removed := s.GC(time.Minute)
	assert.Empty(t, removed)
	assert.False(t, s.Empty())
}

func TestSweepBroadcastsRemovalThatBeatsStaleClock(t *testing.T) {
	s := New()
	s.SetLocalState(9, json.RawMessage(`"x"`))
	time.Sleep(5 * time.Millisecond)

	payload := s.Sweep(time.Millisecond)
	require.NotNil(t, payload)
	assert.True(t, s.Empty())

	other := New()
	other.SetLocalState(9, json.RawMessage(`"x"`))
	delta, err := other.ApplyDelta(payload)
	require.NoError(t, err)
	assert.Equal(t, []uint32{9}, delta.Removed)
}

func TestSweepReturnsNilWhenNothingStale(t *testing.T) {
	s := New()
	s.SetLocalState(1, json.RawMessage(`"x"`))
	assert.Nil(t, s.Sweep(time.Minute))
}
