package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConsumedTokenCache struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisConsumedTokenCache(client redis.UniversalClient, prefix string) *RedisConsumedTokenCache {
	if prefix == "" {
		prefix = "consumed_token"
	}
	return &RedisConsumedTokenCache{
		client: client,
		prefix: prefix,
	}
}

func (c *RedisConsumedTokenCache) Seen(ctx context.Context, tokenType, hash string) (bool, error) {
	if c.client == nil {
		return false, nil
	}
	_, err := c.client.Get(ctx, c.dataKey(tokenType, hash)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisConsumedTokenCache) Mark(ctx context.Context, tokenType, hash string, ttl time.Duration) error {
	if c.client == nil || ttl <= 0 {
		return nil
	}
	dataKey := c.dataKey(tokenType, hash)
	typeIndex := c.typeIndexKey(tokenType)
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, dataKey, "1", ttl)
	pipe.SAdd(ctx, typeIndex, dataKey)
	pipe.Expire(ctx, typeIndex, ttl+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisConsumedTokenCache) InvalidateType(ctx context.Context, tokenType string) error {
	if c.client == nil {
		return nil
	}
	typeIndex := c.typeIndexKey(tokenType)
	keys, err := c.client.SMembers(ctx, typeIndex).Result()
	if err != nil && err != redis.Nil {
		return err
	}
	pipe := c.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, typeIndex)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisConsumedTokenCache) dataKey(tokenType, hash string) string {
	return fmt.Sprintf("%s:data:%s:%s", c.prefix, normalizeCacheSegment(tokenType), digestCacheKey(hash))
}

func (c *RedisConsumedTokenCache) typeIndexKey(tokenType string) string {
	return fmt.Sprintf("%s:index:%s", c.prefix, normalizeCacheSegment(tokenType))
}

func normalizeCacheSegment(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// digestCacheKey keeps at-rest token hashes out of redis key space listings.
func digestCacheKey(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}
