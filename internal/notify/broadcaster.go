// ABOUTME: In-memory fan-out of change signals keyed by topic
// ABOUTME: Each subscriber holds at most one pending signal so slow readers never block publishers

package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Notifier publishes and subscribes to change signals.
type Notifier interface {
	// Publish signals every current subscriber of topic.
	Publish(ctx context.Context, topic string) error
	// Subscribe returns a channel that receives a value after each change to
	// topic, and a function that ends the subscription. The subscription also
	// ends when ctx is cancelled. The channel is closed when it ends.
	Subscribe(ctx context.Context, topic string) (<-chan struct{}, func())
}

// MessagesTopic is signalled after a message is appended to a conversation.
func MessagesTopic(conversationID string) string {
	return "messages:" + conversationID
}

// InboxTopic is signalled when any conversation of userID changes.
func InboxTopic(userID string) string {
	return "inbox:" + userID
}

// Broadcaster is the in-process Notifier.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan struct{} // topic -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan struct{}),
		logger:      logger.With("component", "notify"),
	}
}

// Subscribe registers a subscriber for topic.
func (b *Broadcaster) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func()) {
	subID := uuid.New().String()
	ch := make(chan struct{}, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[string]chan struct{})
	}
	b.subscribers[topic][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "topic", topic, "sub_id", subID)

	stop := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			b.unsubscribe(topic, subID)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()

	return ch, cancel
}

// Publish signals all subscribers of topic. It never blocks: a subscriber
// that has not consumed its previous signal keeps that one pending.
func (b *Broadcaster) Publish(_ context.Context, topic string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return nil
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broadcaster) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

func (b *Broadcaster) unsubscribe(topic, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[topic]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	if len(subs) == 0 {
		delete(b.subscribers, topic)
	}

	b.logger.Debug("subscriber removed", "topic", topic, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, topic)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
	return nil
}
