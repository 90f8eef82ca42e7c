package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	data map[string][]byte
	gets int
}

func newFakeStore() *fakeStore { return &fakeStore{data: map[string][]byte{}} }

func (f *fakeStore) Load(ctx context.Context, room string) ([]byte, error) {
	f.gets++
	return f.data[room], nil
}
func (f *fakeStore) Save(ctx context.Context, room string, state []byte) error {
	f.data[room] = state
	return nil
}
func (f *fakeStore) Delete(ctx context.Context, room string) error {
	delete(f.data, room)
	return nil
}
func (f *fakeStore) List(ctx context.Context) ([]string, error) {
	var rooms []string
	for r := range f.data {
		rooms = append(rooms, r)
	}
	return rooms, nil
}

type fakeCache struct {
	data    map[string][]byte
	failGet bool
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	if c.failGet {
		return nil, errors.New("cache down")
	}
	return c.data[key], nil
}
func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	return nil
}
func (c *fakeCache) Del(ctx context.Context, key string) error {
	delete(c.data, key)
	return nil
}

func TestCachedStoreSaveThenLoadHitsCache(t *testing.T) {
	underlying := newFakeStore()
	c := newFakeCache()
	s := newCachedStoreWithCache(underlying, c)

	require.NoError(t, s.Save(context.Background(), "room-1", []byte("state")))

	state, err := s.Load(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), state)
	assert.Equal(t, 0, underlying.gets, "cache hit should not touch underlying store")
}

func TestCachedStoreLoadFallsBackOnCacheMiss(t *testing.T) {
	underlying := newFakeStore()
	underlying.data["room-2"] = []byte("persisted")
	c := newFakeCache()
	s := newCachedStoreWithCache(underlying, c)

	state, err := s.Load(context.Background(), "room-2")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), state)
	assert.Equal(t, 1, underlying.gets)
}

func TestCachedStoreLoadFallsBackOnCacheError(t *testing.T) {
	underlying := newFakeStore()
	underlying.data["room-3"] = []byte("persisted")
	c := newFakeCache()
	c.failGet = true
	s := newCachedStoreWithCache(underlying, c)

	state, err := s.Load(context.Background(), "room-3")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), state)
}

func TestNullStoreNeverPersists(t *testing.T) {
	s := NewNullStore()
	require.NoError(t, s.Save(context.Background(), "room", []byte("x")))
	state, err := s.Load(context.Background(), "room")
	require.NoError(t, err)
	assert.Nil(t, state)
}
