package changefeed

import (
	"context"
	"fmt"
	"sync"

	"chat-sync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// RedisSource pattern-subscribes to every table channel.
type RedisSource struct {
	Client *redis.Client
	Log    *logger.Logger
}

func (s *RedisSource) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	pubsub := s.Client.PSubscribe(ctx, ChannelPattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", ChannelPattern, err)
	}

	log := s.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "changefeed.redis")

	sub := &redisSubscription{pubsub: pubsub, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for msg := range pubsub.Channel() {
			e, err := Decode([]byte(msg.Payload))
			if err != nil {
				log.Debug("Ignoring message", "channel", msg.Channel, "error", err)
				continue
			}
			handler(e)
		}
	}()
	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (r *redisSubscription) Close() error {
	r.once.Do(func() { r.err = r.pubsub.Close() })
	<-r.done
	return r.err
}
