package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	redislib "github.com/naveenchin/tt-backend/pkgs/redis"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Cache remembers which content reference a blob digest was stored under.
// Local LRU first, Redis second when a client is configured.
type Cache struct {
	redis      *redis.Client
	keys       *redislib.KeyBuilder
	localCache *lru.Cache[string, string]
	ttl        time.Duration
}

// NewCache creates a cache. redisClient may be nil for a process-local cache.
func NewCache(redisClient *redis.Client, keys *redislib.KeyBuilder, localCacheSize int, ttl time.Duration) (*Cache, error) {
	if localCacheSize <= 0 {
		localCacheSize = 1024
	}
	local, err := lru.New[string, string](localCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create LRU cache: %w", err)
	}

	return &Cache{
		redis:      redisClient,
		keys:       keys,
		localCache: local,
		ttl:        ttl,
	}, nil
}

// Lookup returns the reference stored for digest, if known
func (c *Cache) Lookup(ctx context.Context, digest string) (string, bool) {
	if ref, ok := c.localCache.Get(digest); ok {
		log.Debugf("Media cache hit (local): %s", digest)
		return ref, true
	}
	if c.redis == nil {
		return "", false
	}

	ref, err := c.redis.Get(ctx, c.keys.MediaReference(digest)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).Debug("Media cache lookup failed")
		}
		return "", false
	}

	c.localCache.Add(digest, ref)
	log.Debugf("Media cache hit (redis): %s", digest)
	return ref, true
}

// Remember stores the reference for digest. Redis failures are logged only:
// losing a cache entry costs one re-upload of identical content.
func (c *Cache) Remember(ctx context.Context, digest, ref string) {
	c.localCache.Add(digest, ref)
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(ctx, c.keys.MediaReference(digest), ref, c.ttl).Err(); err != nil {
		log.WithError(err).Warn("Failed to persist media reference in redis")
	}
}

// Len returns the local cache size
func (c *Cache) Len() int {
	return c.localCache.Len()
}
