package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// MagicLinkPolicy caps magic-link issuance per identity and per source IP in
// a fixed window.
type MagicLinkPolicy struct {
	MaxPerWindow int
	Window       time.Duration
}

// RedisMagicLinkLimiter is a fixed-window counter in Redis. It fails closed:
// if Redis is unavailable the abuse-sensitive issuance path is refused.
type RedisMagicLinkLimiter struct {
	client *redis.Client
	prefix string
	policy MagicLinkPolicy
}

func NewRedisMagicLinkLimiter(client *redis.Client, prefix string, policy MagicLinkPolicy) *RedisMagicLinkLimiter {
	if prefix == "" {
		prefix = "magiclink"
	}
	return &RedisMagicLinkLimiter{client: client, prefix: prefix, policy: policy}
}

func (l *RedisMagicLinkLimiter) Allow(ctx context.Context, email, ip string) error {
	if email != "" {
		if err := l.enforceKey(ctx, l.emailKey(email)); err != nil {
			return err
		}
	}
	if ip != "" {
		if err := l.enforceKey(ctx, l.ipKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *RedisMagicLinkLimiter) enforceKey(ctx context.Context, key string) error {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("magic link limiter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.policy.Window).Err(); err != nil {
			return fmt.Errorf("magic link limiter: %w", err)
		}
	}
	if count > int64(l.policy.MaxPerWindow) {
		return ErrMagicLinkThrottled
	}
	return nil
}

func (l *RedisMagicLinkLimiter) emailKey(email string) string {
	return l.prefix + ":email:" + strings.ToLower(strings.TrimSpace(email))
}

func (l *RedisMagicLinkLimiter) ipKey(ip string) string {
	return l.prefix + ":ip:" + ip
}
