package snapshot

import "context"

// nullStore is used when SNAPSHOT_DSN is unset: rooms run in-memory
// only, with no resume-after-restart behavior.
type nullStore struct{}

// NewNullStore returns a Store that never persists anything.
func NewNullStore() Store {
	return nullStore{}
}

func (nullStore) Load(ctx context.Context, room string) ([]byte, error) { return nil, nil }
func (nullStore) Save(ctx context.Context, room string, state []byte) error { return nil }
func (nullStore) Delete(ctx context.Context, room string) error             { return nil }
func (nullStore) List(ctx context.Context) ([]string, error)                { return nil, nil }
