package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"huddle-chat/internal/domain/channel"
	"huddle-chat/internal/domain/user"
)

// Cache key patterns:
// - cache:user:{user_id}       - directory entry, 5m TTL
// - cache:channel:{channel_id} - channel metadata, 5m TTL

// CacheConfig contains configuration for caching
type CacheConfig struct {
	UserTTL    time.Duration
	ChannelTTL time.Duration
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		UserTTL:    5 * time.Minute,
		ChannelTTL: 5 * time.Minute,
	}
}

// CacheStore is a read-through cache for profile and channel lookups.
// A miss is reported as (nil, nil).
type CacheStore struct {
	client *goredis.Client
	config CacheConfig
}

func NewCacheStore(client *goredis.Client, config CacheConfig) *CacheStore {
	return &CacheStore{
		client: client,
		config: config,
	}
}

func userKey(id string) string    { return "cache:user:" + id }
func channelKey(id string) string { return "cache:channel:" + id }

func (c *CacheStore) GetUser(ctx context.Context, userID string) (*user.User, error) {
	var u user.User
	ok, err := c.get(ctx, userKey(userID), &u)
	if !ok || err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *CacheStore) SetUser(ctx context.Context, u *user.User) error {
	return c.set(ctx, userKey(u.ID), u, c.config.UserTTL)
}

func (c *CacheStore) InvalidateUser(ctx context.Context, userID string) error {
	return c.client.Del(ctx, userKey(userID)).Err()
}

func (c *CacheStore) GetChannel(ctx context.Context, channelID string) (*channel.Channel, error) {
	var ch channel.Channel
	ok, err := c.get(ctx, channelKey(channelID), &ch)
	if !ok || err != nil {
		return nil, err
	}
	return &ch, nil
}

func (c *CacheStore) SetChannel(ctx context.Context, ch *channel.Channel) error {
	return c.set(ctx, channelKey(ch.ID), ch, c.config.ChannelTTL)
}

func (c *CacheStore) InvalidateChannel(ctx context.Context, channelID string) error {
	return c.client.Del(ctx, channelKey(channelID)).Err()
}

func (c *CacheStore) get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (c *CacheStore) set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}
