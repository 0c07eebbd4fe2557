package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{user_id}:messages  - posts, replies and edits
// - ratelimit:{user_id}:reactions - reaction toggles
// - ratelimit:{user_id}:ws        - websocket session opens

// RateLimitConfig contains configuration for rate limiting
type RateLimitConfig struct {
	MessageLimit   int
	MessageWindow  time.Duration
	ReactionLimit  int
	ReactionWindow time.Duration
	ConnectLimit   int
	ConnectWindow  time.Duration
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MessageLimit:   60,
		MessageWindow:  60 * time.Second,
		ReactionLimit:  120,
		ReactionWindow: 60 * time.Second,
		ConnectLimit:   20,
		ConnectWindow:  60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client *goredis.Client
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client *goredis.Client, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// fixed window counter; the window starts with the first hit
var limitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

// AllowMessage checks if a user can post, reply or edit
func (r *RateLimiter) AllowMessage(ctx context.Context, userID string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:messages", userID)
	return r.checkLimit(ctx, key, r.config.MessageLimit, r.config.MessageWindow)
}

// AllowReaction checks if a user can toggle a reaction
func (r *RateLimiter) AllowReaction(ctx context.Context, userID string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:reactions", userID)
	return r.checkLimit(ctx, key, r.config.ReactionLimit, r.config.ReactionWindow)
}

// AllowConnect checks if a user can open another websocket session
func (r *RateLimiter) AllowConnect(ctx context.Context, userID string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:ws", userID)
	return r.checkLimit(ctx, key, r.config.ConnectLimit, r.config.ConnectWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := limitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	resultSlice, ok := result.([]interface{})
	if !ok || len(resultSlice) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	allowed, _ := resultSlice[0].(int64)
	remaining, _ := resultSlice[1].(int64)
	ttl, _ := resultSlice[2].(int64)

	return &RateLimitResult{
		Allowed:   allowed == 1,
		Remaining: int(remaining),
		ResetIn:   time.Duration(ttl) * time.Second,
		Limit:     limit,
	}, nil
}

// ResetUser clears every limit of a user
func (r *RateLimiter) ResetUser(ctx context.Context, userID string) error {
	keys := []string{
		fmt.Sprintf("ratelimit:%s:messages", userID),
		fmt.Sprintf("ratelimit:%s:reactions", userID),
		fmt.Sprintf("ratelimit:%s:ws", userID),
	}
	return r.client.Del(ctx, keys...).Err()
}
