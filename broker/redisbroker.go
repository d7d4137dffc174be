package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/robotics-4-all/goalee/internal/glog"
)

const pingTimeout = 3 * time.Second

// redisConn adapts a go-redis client's Pub/Sub to Conn, generalizing the
// client-construction pattern of stock/cache.go from a GET/SET cache to a
// Subscribe/Publish broker.
type redisConn struct {
	client *redis.Client
	log    *zap.SugaredLogger
}

func dialRedis(ctx context.Context, d Descriptor) (Conn, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", d.Host(), d.Port()),
		Username: d.Username(),
		Password: d.Password(),
		DB:       d.DB(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("broker: failed to connect to redis: %w", err)
	}

	return &redisConn{client: client, log: glog.New("broker.redis")}, nil
}

func (c *redisConn) Subscribe(ctx context.Context, topic string, onMessage func(map[string]any)) (Subscription, error) {
	pubsub := c.client.Subscribe(ctx, topic)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("broker: failed to subscribe to %q: %w", topic, err)
	}

	ch := pubsub.Channel()
	go func() {
		for msg := range ch {
			obj, ok := decodeJSON([]byte(msg.Payload))
			if !ok {
				c.log.Warnw("dropping malformed redis payload", "topic", topic)
				continue
			}
			onMessage(obj)
		}
	}()

	return &redisSubscription{pubsub: pubsub}, nil
}

func (c *redisConn) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("broker: failed to marshal payload for topic %q: %w", topic, err)
	}
	return c.client.Publish(ctx, topic, body).Err()
}

func (c *redisConn) Close() error {
	return c.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
}

func (s *redisSubscription) Unsubscribe() error {
	return s.pubsub.Close()
}
