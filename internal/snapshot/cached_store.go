package snapshot

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// cache is the slice of *redis.Client that cachedStore actually uses,
// kept as an interface so tests can substitute a fake instead of
// talking to a real Redis instance.
type cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

const cacheTTL = 10 * time.Minute

// cachedStore wraps a durable Store with a Redis read/write-through
// layer. Any Redis error is logged and treated as a cache miss — the
// underlying store remains the source of truth.
type cachedStore struct {
	underlying Store
	cache      cache
}

// NewCachedStore wraps underlying with a Redis cache at addr.
func NewCachedStore(underlying Store, addr string) Store {
	client := redis.NewClient(&redis.Options{Addr: addr})
	return &cachedStore{underlying: underlying, cache: redisCache{client}}
}

func newCachedStoreWithCache(underlying Store, c cache) Store {
	return &cachedStore{underlying: underlying, cache: c}
}

func (s *cachedStore) Load(ctx context.Context, room string) ([]byte, error) {
	if state, err := s.cache.Get(ctx, room); err == nil && state != nil {
		return state, nil
	} else if err != nil {
		log.Warn().Err(err).Str("room", room).Msg("snapshot cache get failed, falling back")
	}

	state, err := s.underlying.Load(ctx, room)
	if err != nil {
		return nil, err
	}
	if state != nil {
		if err := s.cache.Set(ctx, room, state, cacheTTL); err != nil {
			log.Warn().Err(err).Str("room", room).Msg("snapshot cache set failed")
		}
	}
	return state, nil
}

func (s *cachedStore) Save(ctx context.Context, room string, state []byte) error {
	if err := s.underlying.Save(ctx, room, state); err != nil {
		return err
	}
	if err := s.cache.Set(ctx, room, state, cacheTTL); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("snapshot cache set failed")
	}
	return nil
}

func (s *cachedStore) Delete(ctx context.Context, room string) error {
	if err := s.underlying.Delete(ctx, room); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, room); err != nil {
		log.Warn().Err(err).Str("room", room).Msg("snapshot cache del failed")
	}
	return nil
}

func (s *cachedStore) List(ctx context.Context) ([]string, error) {
	return s.underlying.List(ctx)
}

// redisCache adapts *redis.Client to the cache interface.
type redisCache struct {
	client *redis.Client
}

func (r redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return b, err
}

func (r redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r redisCache) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
