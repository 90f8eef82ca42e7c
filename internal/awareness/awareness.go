// Package awareness implements the hub's ephemeral per-client presence
// state: cursor positions, user identity, and any other client-chosen
// payload, merged by a monotonically increasing per-client clock rather
// than persisted or reconciled through the CRDT.
package awareness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"collabhub/internal/protocol"
)

// Delta describes the result of merging an incoming delta or a removal,
// for the Room to turn into the corresponding broadcast.
type Delta struct {
	Added   []uint32
	Updated []uint32
	Removed []uint32
}

type entry struct {
	state  json.RawMessage
	clock  uint64
	seenAt time.Time
}

// Set holds one room's awareness state.
type Set struct {
	mu      sync.Mutex
	entries map[uint32]entry
}

// New returns an empty awareness set.
func New() *Set {
	return &Set{entries: make(map[uint32]entry)}
}

// SetLocalState records state for clientID on this replica, bumping its
// clock. The Room merges session deltas through ApplyDelta, not this.
func (s *Set) SetLocalState(clientID uint32, state json.RawMessage) Delta {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.entries[clientID]
	clock := s.entries[clientID].clock + 1
	s.entries[clientID] = entry{state: state, clock: clock, seenAt: time.Now()}
	if existed {
		return Delta{Updated: []uint32{clientID}}
	}
	return Delta{Added: []uint32{clientID}}
}

// All returns every currently-held client id/state pair.
func (s *Set) All() map[uint32]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32]json.RawMessage, len(s.entries))
	for id, e := range s.entries {
		out[id] = e.state
	}
	return out
}

// Empty reports whether the set currently holds no entries.
func (s *Set) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) == 0
}

// EncodeAll serializes every current entry as an awareness delta
// payload, used for the initial snapshot sent to a newly attached
// session.
func (s *Set) EncodeAll() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return encodeDelta(s.entries)
}

// EncodeFor serializes only the named client ids (used to broadcast a
// targeted update rather than the whole set).
func (s *Set) EncodeFor(clientIDs []uint32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	subset := make(map[uint32]entry, len(clientIDs))
	for _, id := range clientIDs {
		if e, ok := s.entries[id]; ok {
			subset[id] = e
		}
	}
	return encodeDelta(subset)
}

// ApplyDelta merges an incoming wire delta using clock-based
// last-writer-wins: an entry whose incoming clock is not greater than
// the locally-held one is ignored. An empty state with a higher clock
// represents a removal.
func (s *Set) ApplyDelta(payload []byte) (Delta, error) {
	incoming, err := decodeDelta(payload)
	if err != nil {
		return Delta{}, fmt.Errorf("awareness: decode delta: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var d Delta
	for id, inc := range incoming {
		cur, exists := s.entries[id]
		if exists && inc.clock <= cur.clock {
			continue
		}
		if len(inc.state) == 0 {
			if exists {
				delete(s.entries, id)
				d.Removed = append(d.Removed, id)
			}
			continue
		}
		s.entries[id] = entry{state: inc.state, clock: inc.clock, seenAt: time.Now()}
		if exists {
			d.Updated = append(d.Updated, id)
		} else {
			d.Added = append(d.Added, id)
		}
	}
	return d, nil
}

// Remove broadcasts the removal of the given client ids: each gets a
// higher clock and an empty state, matching the spec's "removal is
// broadcast by transmitting k with a higher clock and empty state"
// invariant. Returns the wire payload to broadcast.
func (s *Set) Remove(clientIDs []uint32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make(map[uint32]entry, len(clientIDs))
	for _, id := range clientIDs {
		clock := s.entries[id].clock + 1
		delete(s.entries, id)
		removed[id] = entry{state: nil, clock: clock, seenAt: time.Now()}
	}
	return encodeDelta(removed)
}

// GC drops entries that haven't refreshed within timeout, returning the
// ids removed so the caller can broadcast their removal.
func (s *Set) GC(timeout time.Duration) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var stale []uint32
	for id, e := range s.entries {
		if now.Sub(e.seenAt) > timeout {
			stale = append(stale, id)
			delete(s.entries, id)
		}
	}
	return stale
}

// Sweep is GC plus the removal broadcast in one step: each stale entry
// gets a higher clock and an empty state before being dropped, so the
// returned payload still wins last-writer-wins against any replica
// that hasn't seen the removal yet. Returns nil if nothing was stale.
func (s *Set) Sweep(timeout time.Duration) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := make(map[uint32]entry)
	for id, e := range s.entries {
		if now.Sub(e.seenAt) > timeout {
			removed[id] = entry{state: nil, clock: e.clock + 1, seenAt: now}
			delete(s.entries, id)
		}
	}
	if len(removed) == 0 {
		return nil
	}
	return encodeDelta(removed)
}

func encodeDelta(entries map[uint32]entry) []byte {
	var buf bytes.Buffer
	protocol.WriteUvarint(&buf, uint64(len(entries)))
	for id, e := range entries {
		protocol.WriteUvarint(&buf, uint64(id))
		protocol.WriteUvarint(&buf, e.clock)
		protocol.WriteBytes(&buf, e.state)
	}
	return buf.Bytes()
}

func decodeDelta(b []byte) (map[uint32]entry, error) {
	count, n, err := protocol.ReadUvarint(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]
	out := make(map[uint32]entry, count)
	for i := uint64(0); i < count; i++ {
		id, n, err := protocol.ReadUvarint(b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
		clock, n, err := protocol.ReadUvarint(b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
		state, n, err := protocol.ReadBytes(b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
		var stateCopy json.RawMessage
		if len(state) > 0 {
			stateCopy = append(json.RawMessage(nil), state...)
		}
		out[uint32(id)] = entry{state: stateCopy, clock: clock}
	}
	return out, nil
}
