package pubsub

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisBroker maps each room to the channel "<prefix><room>" and receives
// every room with a single pattern subscription.
type RedisBroker struct {
	client *redis.Client
	prefix string
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis connects and pings so a bad address fails at startup.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return client, nil
}

func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

func (r *RedisBroker) Publish(ctx context.Context, room string, data []byte) error {
	return r.client.Publish(ctx, r.prefix+room, data).Err()
}

func (r *RedisBroker) Subscribe(ctx context.Context, handler func(room string, data []byte)) (func() error, error) {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	// Wait for the subscription confirmation so errors surface here.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := ps.Channel()
	go func() {
		for m := range ch {
			handler(strings.TrimPrefix(m.Channel, r.prefix), []byte(m.Payload))
		}
	}()
	return ps.Close, nil
}

func (r *RedisBroker) Close() error {
	return r.client.Close()
}
