package search

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/choraleia/coach/pkg/utils"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "coach:search:"

// CacheStore is the subset of the redis client used by CachedProvider.
type CacheStore interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedProvider serves repeated queries from Redis. Only successful
// results are stored, and any cache error is treated as a miss.
type CachedProvider struct {
	next   Provider
	store  CacheStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(next Provider, store CacheStore, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: utils.GetLogger(),
	}
}

// NewRedisClient connects to Redis and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func cacheKey(query string, maxResults int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%d|%s", maxResults, query)))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

func (p *CachedProvider) Search(ctx context.Context, query string, maxResults int) Result {
	maxResults = ClampMaxResults(maxResults)
	key := cacheKey(query, maxResults)

	raw, err := p.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Result
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil && cached.Success {
			p.logger.Debug("Search cache hit", "query", query)
			return cached
		}
	case err != redis.Nil:
		p.logger.Warn("Search cache read failed", "error", err)
	}

	result := p.next.Search(ctx, query, maxResults)
	if !result.Success {
		return result
	}

	b, err := json.Marshal(result)
	if err != nil {
		return result
	}
	if err := p.store.Set(ctx, key, b, p.ttl).Err(); err != nil {
		p.logger.Warn("Search cache write failed", "error", err)
	}
	return result
}
