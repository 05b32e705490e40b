package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/igotyouboo-api/internal/metrics"
)

// DefaultRoleCacheTTL bounds how long a role mapping is served from Redis.
// Roles are reference data so a long TTL is safe.
const DefaultRoleCacheTTL = time.Hour

// CachedRoleStore puts a Redis read-through cache in front of a RoleStore.
// Every authenticated request resolves a role name, so this keeps the hot path
// off the primary store.  A nil client disables caching.
type CachedRoleStore struct {
	next   RoleStore
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewCachedRoleStore(next RoleStore, rdb *redis.Client, ttl time.Duration) *CachedRoleStore {
	if ttl <= 0 {
		ttl = DefaultRoleCacheTTL
	}
	return &CachedRoleStore{next: next, rdb: rdb, ttl: ttl, prefix: "role"}
}

func (s *CachedRoleStore) FindRoleIDByName(ctx context.Context, name string) (string, error) {
	return s.lookup(ctx, s.prefix+":id:"+name, func() (string, error) {
		return s.next.FindRoleIDByName(ctx, name)
	})
}

func (s *CachedRoleStore) FindRoleNameByID(ctx context.Context, id string) (string, error) {
	return s.lookup(ctx, s.prefix+":name:"+id, func() (string, error) {
		return s.next.FindRoleNameByID(ctx, id)
	})
}

// lookup serves key from Redis or falls back to load.  Redis failures are
// logged and never fail the request.  Misses on the store are not cached.
func (s *CachedRoleStore) lookup(ctx context.Context, key string, load func() (string, error)) (string, error) {
	if s.rdb == nil {
		return load()
	}

	v, err := s.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		metrics.CacheHits.WithLabelValues("role").Inc()
		return v, nil
	case !errors.Is(err, redis.Nil):
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("role cache read failed")
	}
	metrics.CacheMisses.WithLabelValues("role").Inc()

	v, err = load()
	if err != nil {
		return "", err
	}
	if err := s.rdb.SetEx(ctx, key, v, s.ttl).Err(); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("role cache write failed")
	}
	return v, nil
}
