// Package crdt implements the shared text type the hub synchronizes: a
// replicated growable array (RGA) CRDT with per-client sequence numbers,
// state-vector diffing, and idempotent update application.
//
// The document only ever exposes opaque update bytes to callers; nothing
// outside this package inspects an update's structure (spec invariant:
// "serialization is opaque binary — never parsed outside the CRDT
// library").
package crdt

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
)

// NodeID identifies a single RGA node: the (client, sequence) pair that
// created it. Sequence numbers are per-client and start at 1, so the
// zero value NodeID{} is reserved to mean "no node" (used as the
// InsertAfter anchor for an insertion at the head of the text).
type NodeID struct {
	Client uint32
	Seq    uint64
}

var zeroID = NodeID{}

// idLess defines the deterministic tie-break used when two nodes are
// inserted immediately after the same anchor: higher (Seq, Client) wins
// and sorts first, independent of arrival order, which is what makes RGA
// converge regardless of network interleaving.
func idLess(a, b NodeID) bool {
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.Client > b.Client
}

type rgaNode struct {
	ID          NodeID
	InsertAfter NodeID
	Char        rune
	Deleted     bool
}

// Document is one shared-text CRDT instance, corresponding to the
// fixed "content" key in the spec's data model.
type Document struct {
	mu       sync.Mutex
	clientID uint32
	seq      uint64

	nodes []*rgaNode
	index map[NodeID]int

	// log holds, per originating client, every op that client has ever
	// issued, in seq order. It is the append-only history a state vector
	// diff replays from — the materialized nodes/index above are just a
	// cached view of it.
	log map[uint32][]opRecord

	// onUpdate fires after any successful, non-empty mutation (local or
	// applied-from-network) with the update bytes and an origin tag. The
	// Room uses the tag to decide whether to persist and/or rebroadcast.
	onUpdate func(update []byte, origin string)
}

// New constructs an empty document with a fresh, randomly chosen client
// id. The id is never persisted: every Document instance (one per live
// Room) gets a new one.
func New() *Document {
	return &Document{
		clientID: randomClientID(),
		index:    make(map[NodeID]int),
		log:      make(map[uint32][]opRecord),
	}
}

func randomClientID() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1
	}
	id := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if id == 0 {
		id = 1
	}
	return id
}

// ClientID returns this document instance's assigned client id.
func (d *Document) ClientID() uint32 {
	return d.clientID
}

// OnUpdate registers the single update listener for this document.
func (d *Document) OnUpdate(fn func(update []byte, origin string)) {
	d.mu.Lock()
	d.onUpdate = fn
	d.mu.Unlock()
}

// Text returns the document's current visible content.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var sb strings.Builder
	for _, n := range d.nodes {
		if !n.Deleted {
			sb.WriteRune(n.Char)
		}
	}
	return sb.String()
}

// Insert applies a local insertion of text at rune offset pos, tagging
// the resulting update with origin.
func (d *Document) Insert(pos int, text string, origin string) {
	if text == "" {
		return
	}
	d.mu.Lock()
	anchor := d.anchorForPosLocked(pos)
	var ops []opRecord
	for _, r := range text {
		d.seq++
		id := NodeID{Client: d.clientID, Seq: d.seq}
		op := opRecord{Kind: opInsert, ID: id, InsertAfter: anchor, Char: r}
		d.applyLocalOpLocked(op)
		ops = append(ops, op)
		anchor = id
	}
	update := encodeOps(ops)
	cb := d.onUpdate
	d.mu.Unlock()
	if cb != nil {
		cb(update, origin)
	}
}

// Delete applies a local deletion of length runes starting at rune
// offset pos, tagging the resulting update with origin.
func (d *Document) Delete(pos, length int, origin string) {
	if length <= 0 {
		return
	}
	d.mu.Lock()
	targets := d.targetsForRangeLocked(pos, length)
	ops := d.deleteTargetsLocked(targets)
	var update []byte
	if len(ops) > 0 {
		update = encodeOps(ops)
	}
	cb := d.onUpdate
	d.mu.Unlock()
	if len(ops) > 0 && cb != nil {
		cb(update, origin)
	}
}

// ReplaceAll deletes the entire current content and inserts text, as a
// single CRDT transaction (one update, one emitted event) — used by the
// out-of-band script-sync path so the replacement remains a (delete,
// insert) pair applicable against any client's prior history rather than
// a destructive state swap.
func (d *Document) ReplaceAll(text string, origin string) {
	d.mu.Lock()
	visible := d.visibleCountLocked()
	var ops []opRecord
	if visible > 0 {
		targets := d.targetsForRangeLocked(0, visible)
		ops = append(ops, d.deleteTargetsLocked(targets)...)
	}
	anchor := zeroID
	for _, r := range text {
		d.seq++
		id := NodeID{Client: d.clientID, Seq: d.seq}
		op := opRecord{Kind: opInsert, ID: id, InsertAfter: anchor, Char: r}
		d.applyLocalOpLocked(op)
		ops = append(ops, op)
		anchor = id
	}
	var update []byte
	if len(ops) > 0 {
		update = encodeOps(ops)
	}
	cb := d.onUpdate
	d.mu.Unlock()
	if len(ops) > 0 && cb != nil {
		cb(update, origin)
	}
}

// ApplyUpdate decodes and integrates an update produced by this
// document's UpdateFromStateVector/EncodeStateAsUpdate (or a peer
// replica's equivalent), idempotently. origin is passed through to the
// update listener unchanged.
func (d *Document) ApplyUpdate(update []byte, origin string) error {
	ops, err := decodeOps(update)
	if err != nil {
		return fmt.Errorf("crdt: decode update: %w", err)
	}
	d.mu.Lock()
	changed := d.applyOpsLocked(ops)
	cb := d.onUpdate
	d.mu.Unlock()
	if changed && cb != nil {
		cb(update, origin)
	}
	return nil
}

// StateVector returns this document's current state vector: for every
// client it has ever seen ops from, the count of ops integrated.
func (d *Document) StateVector() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return encodeStateVector(d.log)
}

// UpdateFromStateVector computes the minimal update that would bring a
// peer holding svBytes up to this document's current state. A nil
// result (with nil error) means the peer is already caught up — callers
// must not emit a zero-payload syncStep2 for that case.
func (d *Document) UpdateFromStateVector(svBytes []byte) ([]byte, error) {
	sv, err := decodeStateVector(svBytes)
	if err != nil {
		return nil, fmt.Errorf("crdt: decode state vector: %w", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var ops []opRecord
	for client, log := range d.log {
		have := sv[client]
		if uint64(len(log)) > have {
			ops = append(ops, log[have:]...)
		}
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return encodeOps(ops), nil
}

// EncodeStateAsUpdate serializes the full document state as a single
// update, equivalent to UpdateFromStateVector against an empty vector.
func (d *Document) EncodeStateAsUpdate() []byte {
	u, _ := d.UpdateFromStateVector(nil)
	return u
}
