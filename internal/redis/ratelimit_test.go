package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRateLimiter(client, RateLimitConfig{
		MessageLimit:  2,
		MessageWindow: time.Minute,
	})
	ctx := context.Background()

	first, err := limiter.AllowMessage(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Allowed)
	assert.Equal(t, 1, first.Remaining)

	second, err := limiter.AllowMessage(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, second.Allowed)

	third, err := limiter.AllowMessage(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, third.Allowed)
	assert.Equal(t, 2, third.Limit)

	other, err := limiter.AllowMessage(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	require.NoError(t, limiter.ResetUser(ctx, "u1"))
	again, err := limiter.AllowMessage(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, again.Allowed)
}

func TestRateLimiterWindowExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewRateLimiter(client, RateLimitConfig{
		ReactionLimit:  1,
		ReactionWindow: 10 * time.Second,
	})
	ctx := context.Background()

	res, err := limiter.AllowReaction(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowReaction(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	mr.FastForward(11 * time.Second)

	res, err = limiter.AllowReaction(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
