// ABOUTME: Redis pub/sub Notifier for running several gateway processes
// ABOUTME: Publishes to prefixed channels and relays one pattern subscription into a local Broadcaster

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/voyengo/voyengo/internal/apperr"
)

// RedisNotifier publishes signals through Redis so that subscribers attached
// to any gateway process see writes made by any other.
type RedisNotifier struct {
	client *redis.Client
	prefix string
	pubsub *redis.PubSub
	local  *Broadcaster
	done   chan struct{}
	logger *slog.Logger
}

// NewRedisNotifier subscribes to prefix* on client and starts relaying.
// The caller keeps ownership of client.
func NewRedisNotifier(ctx context.Context, client *redis.Client, prefix string, logger *slog.Logger) (*RedisNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify.redis")

	pubsub := client.PSubscribe(ctx, prefix+"*")
	// Wait for the subscription to be confirmed so no publish is missed after return
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribing to %s*: %w", prefix, err)
	}

	n := &RedisNotifier{
		client: client,
		prefix: prefix,
		pubsub: pubsub,
		local:  NewBroadcaster(logger),
		done:   make(chan struct{}),
		logger: logger,
	}
	go n.relay()

	logger.Info("redis notifier started", "pattern", prefix+"*")
	return n, nil
}

func (n *RedisNotifier) relay() {
	defer close(n.done)
	for msg := range n.pubsub.Channel() {
		topic := strings.TrimPrefix(msg.Channel, n.prefix)
		_ = n.local.Publish(context.Background(), topic)
	}
}

// Publish sends the signal to every gateway process, this one included.
func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	if err := n.client.Publish(ctx, n.prefix+topic, "1").Err(); err != nil {
		return apperr.Unavailable("publishing "+topic, err)
	}
	return nil
}

// Subscribe attaches to the local relay.
func (n *RedisNotifier) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func()) {
	return n.local.Subscribe(ctx, topic)
}

// Close stops the relay and closes all local subscriptions.
func (n *RedisNotifier) Close() error {
	err := n.pubsub.Close()
	<-n.done
	n.local.Close()
	return err
}
