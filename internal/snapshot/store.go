// Package snapshot persists the periodic CRDT state of each room so a
// restarted hub (or a freshly created Room actor) can resume from the
// last debounced save instead of an empty document.
//
// Store is a consumer-driven interface: the Room is the only consumer,
// so it's defined here next to its implementations rather than at the
// call site, following the convention documented in the teacher's
// api/interfaces.go.
package snapshot

import (
	"context"
	"errors"
)

// ErrNotFound names the "room never saved" condition. No Store in this
// package returns it: their Load reports that case as (nil, nil).
var ErrNotFound = errors.New("snapshot: not found")

// Store persists and retrieves the encoded CRDT state for a room. The
// encoding is whatever crdt.Document.EncodeStateAsUpdate produces —
// the store treats it as an opaque blob. Load returns (nil, nil) for a
// room that has never been saved.
type Store interface {
	Load(ctx context.Context, room string) ([]byte, error)
	Save(ctx context.Context, room string, state []byte) error
	Delete(ctx context.Context, room string) error
	List(ctx context.Context) ([]string, error)
}
