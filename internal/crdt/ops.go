package crdt

import (
	"bytes"
	"fmt"

	"collabhub/internal/protocol"
)

type opKind byte

const (
	opInsert opKind = 0
	opDelete opKind = 1
)

// opRecord is one entry in a client's append-only op log: either the
// creation of a new node (opInsert) or the tombstoning of an existing
// one (opDelete). Both kinds consume the issuing client's next sequence
// number, so a state vector covers deletes as well as inserts.
type opRecord struct {
	Kind        opKind
	ID          NodeID
	InsertAfter NodeID // opInsert only
	Char        rune   // opInsert only
	Target      NodeID // opDelete only
}

// visibleCountLocked counts non-tombstoned nodes.
func (d *Document) visibleCountLocked() int {
	n := 0
	for _, node := range d.nodes {
		if !node.Deleted {
			n++
		}
	}
	return n
}

// anchorForPosLocked returns the NodeID a new insertion at rune offset
// pos should be chained after: the id of the visible node immediately
// preceding pos, or zeroID for pos <= 0.
func (d *Document) anchorForPosLocked(pos int) NodeID {
	if pos <= 0 {
		return zeroID
	}
	visible := 0
	for _, n := range d.nodes {
		if n.Deleted {
			continue
		}
		visible++
		if visible == pos {
			return n.ID
		}
	}
	for i := len(d.nodes) - 1; i >= 0; i-- {
		if !d.nodes[i].Deleted {
			return d.nodes[i].ID
		}
	}
	return zeroID
}

// targetsForRangeLocked collects the ids of up to length visible nodes
// starting at visible offset pos. Fewer than length ids are returned if
// the document is shorter than requested; callers must not treat this
// as an error.
func (d *Document) targetsForRangeLocked(pos, length int) []NodeID {
	var targets []NodeID
	visible := 0
	for _, n := range d.nodes {
		if n.Deleted {
			continue
		}
		if visible >= pos && len(targets) < length {
			targets = append(targets, n.ID)
		}
		visible++
		if len(targets) >= length {
			break
		}
	}
	return targets
}

func (d *Document) deleteTargetsLocked(targets []NodeID) []opRecord {
	ops := make([]opRecord, 0, len(targets))
	for _, target := range targets {
		d.seq++
		id := NodeID{Client: d.clientID, Seq: d.seq}
		op := opRecord{Kind: opDelete, ID: id, Target: target}
		d.applyLocalOpLocked(op)
		ops = append(ops, op)
	}
	return ops
}

// applyLocalOpLocked integrates an op this replica just originated.
// Local ops never have unmet dependencies, so it always succeeds.
func (d *Document) applyLocalOpLocked(op opRecord) {
	switch op.Kind {
	case opInsert:
		d.integrateNodeLocked(&rgaNode{ID: op.ID, InsertAfter: op.InsertAfter, Char: op.Char})
	case opDelete:
		if pi, ok := d.index[op.Target]; ok {
			d.nodes[pi].Deleted = true
		}
	}
	d.log[op.ID.Client] = append(d.log[op.ID.Client], op)
}

// integrateNodeLocked inserts a new node into the RGA sequence,
// resolving concurrent-insertion-at-the-same-anchor conflicts via
// idLess so every replica converges on the same order regardless of
// delivery order.
//
// The scan forward from the anchor must not stop at the first sibling
// whose InsertAfter differs from n's: a losing sibling's own descendant
// chain (nodes anchored, transitively, somewhere inside that sibling)
// has to stay glued to it as a unit, or two replicas that received the
// same ops in different orders can splice a later concurrent sibling
// into the middle of that chain. So every node encountered is compared
// by the array position of *its own* anchor against n's anchor
// position (parentPos), not by identity:
//   - anchor position before parentPos: that node (and everything after
//     it) has left n's subtree entirely — stop.
//   - anchor position equal to parentPos: a true sibling of n — run the
//     tie-break; stop only if n wins.
//   - anchor position after parentPos: a descendant nested under one of
//     n's siblings — skip over it without a tie-break, it travels with
//     whichever sibling it's attached to.
func (d *Document) integrateNodeLocked(n *rgaNode) {
	parentPos := -1
	if n.InsertAfter != zeroID {
		parentPos = d.index[n.InsertAfter]
	}
	pos := parentPos + 1
	for pos < len(d.nodes) {
		sib := d.nodes[pos]
		sibAnchorPos := -1
		if sib.InsertAfter != zeroID {
			sibAnchorPos = d.index[sib.InsertAfter]
		}
		if sibAnchorPos < parentPos {
			break
		}
		if sibAnchorPos == parentPos && idLess(n.ID, sib.ID) {
			break
		}
		pos++
	}
	d.nodes = append(d.nodes, nil)
	copy(d.nodes[pos+1:], d.nodes[pos:])
	d.nodes[pos] = n
	d.reindexFromLocked(pos)
}

func (d *Document) reindexFromLocked(from int) {
	for i := from; i < len(d.nodes); i++ {
		d.index[d.nodes[i].ID] = i
	}
}

// tryApplyOp attempts to integrate a remotely-received op. handled is
// true if the op could be processed (whether or not it changed
// anything — an already-integrated op is handled but not new). When
// handled is false, waitOn names the dependency (a previous same-client
// op, or an insertion anchor) the caller must apply first.
func (d *Document) tryApplyOp(op opRecord) (handled bool, isNew bool, waitOn NodeID) {
	have := uint64(len(d.log[op.ID.Client]))
	if op.ID.Seq <= have {
		return true, false, zeroID
	}
	if op.ID.Seq != have+1 {
		return false, false, NodeID{Client: op.ID.Client, Seq: op.ID.Seq - 1}
	}
	switch op.Kind {
	case opInsert:
		if op.InsertAfter != zeroID {
			if _, ok := d.index[op.InsertAfter]; !ok {
				return false, false, op.InsertAfter
			}
		}
		d.integrateNodeLocked(&rgaNode{ID: op.ID, InsertAfter: op.InsertAfter, Char: op.Char})
	case opDelete:
		pi, ok := d.index[op.Target]
		if !ok {
			return false, false, op.Target
		}
		d.nodes[pi].Deleted = true
	}
	d.log[op.ID.Client] = append(d.log[op.ID.Client], op)
	return true, true, zeroID
}

// applyOpsLocked integrates a decoded batch, buffering ops whose
// dependency hasn't arrived yet and replaying them once it does. Any op
// whose dependency never resolves within the batch is silently dropped
// — under correct clients (every dependency shipped in the same diff or
// already integrated) this never happens; it is the CRDT-apply-failure
// case the spec says should not occur.
func (d *Document) applyOpsLocked(ops []opRecord) bool {
	queue := append([]opRecord(nil), ops...)
	pending := map[NodeID][]opRecord{}
	changed := false
	for len(queue) > 0 {
		op := queue[0]
		queue = queue[1:]
		handled, isNew, waitOn := d.tryApplyOp(op)
		if handled {
			if isNew {
				changed = true
			}
			if waiters, ok := pending[op.ID]; ok {
				queue = append(queue, waiters...)
				delete(pending, op.ID)
			}
			continue
		}
		pending[waitOn] = append(pending[waitOn], op)
	}
	return changed
}

func encodeOps(ops []opRecord) []byte {
	var buf bytes.Buffer
	protocol.WriteUvarint(&buf, uint64(len(ops)))
	for _, op := range ops {
		buf.WriteByte(byte(op.Kind))
		protocol.WriteUvarint(&buf, uint64(op.ID.Client))
		protocol.WriteUvarint(&buf, op.ID.Seq)
		switch op.Kind {
		case opInsert:
			protocol.WriteUvarint(&buf, uint64(op.InsertAfter.Client))
			protocol.WriteUvarint(&buf, op.InsertAfter.Seq)
			protocol.WriteUvarint(&buf, uint64(op.Char))
		case opDelete:
			protocol.WriteUvarint(&buf, uint64(op.Target.Client))
			protocol.WriteUvarint(&buf, op.Target.Seq)
		}
	}
	return buf.Bytes()
}

func decodeOps(update []byte) ([]opRecord, error) {
	count, n, err := protocol.ReadUvarint(update)
	if err != nil {
		return nil, err
	}
	update = update[n:]

	ops := make([]opRecord, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(update) < 1 {
			return nil, protocol.ErrTruncated
		}
		kind := opKind(update[0])
		update = update[1:]

		client, n, err := protocol.ReadUvarint(update)
		if err != nil {
			return nil, err
		}
		update = update[n:]
		seq, n, err := protocol.ReadUvarint(update)
		if err != nil {
			return nil, err
		}
		update = update[n:]

		op := opRecord{Kind: kind, ID: NodeID{Client: uint32(client), Seq: seq}}
		switch kind {
		case opInsert:
			ac, n, err := protocol.ReadUvarint(update)
			if err != nil {
				return nil, err
			}
			update = update[n:]
			as, n, err := protocol.ReadUvarint(update)
			if err != nil {
				return nil, err
			}
			update = update[n:]
			ch, n, err := protocol.ReadUvarint(update)
			if err != nil {
				return nil, err
			}
			update = update[n:]
			op.InsertAfter = NodeID{Client: uint32(ac), Seq: as}
			op.Char = rune(ch)
		case opDelete:
			tc, n, err := protocol.ReadUvarint(update)
			if err != nil {
				return nil, err
			}
			update = update[n:]
			ts, n, err := protocol.ReadUvarint(update)
			if err != nil {
				return nil, err
			}
			update = update[n:]
			op.Target = NodeID{Client: uint32(tc), Seq: ts}
		default:
			return nil, fmt.Errorf("crdt: unknown op kind %d", kind)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func encodeStateVector(log map[uint32][]opRecord) []byte {
	var buf bytes.Buffer
	protocol.WriteUvarint(&buf, uint64(len(log)))
	for client, ops := range log {
		protocol.WriteUvarint(&buf, uint64(client))
		protocol.WriteUvarint(&buf, uint64(len(ops)))
	}
	return buf.Bytes()
}

func decodeStateVector(b []byte) (map[uint32]uint64, error) {
	sv := map[uint32]uint64{}
	if len(b) == 0 {
		return sv, nil
	}
	count, n, err := protocol.ReadUvarint(b)
	if err != nil {
		return nil, err
	}
	b = b[n:]
	for i := uint64(0); i < count; i++ {
		client, n, err := protocol.ReadUvarint(b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
		seq, n, err := protocol.ReadUvarint(b)
		if err != nil {
			return nil, err
		}
		b = b[n:]
		sv[uint32(client)] = seq
	}
	return sv, nil
}
