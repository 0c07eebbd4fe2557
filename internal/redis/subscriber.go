package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type Subscriber struct {
	client *redis.Client
}

func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe listens on the given channel patterns until ctx ends or the
// connection fails. onReady runs once the server has confirmed the
// subscription, so callers can resync state that changed before it.
func (s *Subscriber) Subscribe(ctx context.Context, patterns []string, onReady func(), handler func(channel string, payload []byte)) error {
	sub := s.client.PSubscribe(ctx, patterns...)
	defer sub.Close()

	// Blocked reads do not observe ctx; closing the connection unblocks them.
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stop()

	for range patterns {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			return fmt.Errorf("unexpected pubsub reply %T", msg)
		}
	}
	if onReady != nil {
		onReady()
	}

	for {
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		handler(msg.Channel, []byte(msg.Payload))
	}
}
