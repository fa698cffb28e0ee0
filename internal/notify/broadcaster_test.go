// ABOUTME: Tests for the in-memory Broadcaster
// ABOUTME: Covers fan-out, coalescing, unsubscribe, context cancellation and concurrency

package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func received(ch <-chan struct{}) bool {
	select {
	case _, ok := <-ch:
		return ok
	case <-time.After(time.Second):
		return false
	}
}

func pending(ch <-chan struct{}) bool {
	select {
	case _, ok := <-ch:
		return ok
	default:
		return false
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), MessagesTopic("alice_bob"))
	ch2, _ := b.Subscribe(t.Context(), MessagesTopic("alice_bob"))
	other, _ := b.Subscribe(t.Context(), MessagesTopic("alice_carol"))

	require.NoError(t, b.Publish(t.Context(), MessagesTopic("alice_bob")))

	assert.True(t, received(ch1))
	assert.True(t, received(ch2))
	assert.False(t, pending(other), "other topics are not signalled")
}

func TestBroadcaster_CoalescesPendingSignals(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), InboxTopic("u1"))
	for range 10 {
		require.NoError(t, b.Publish(t.Context(), InboxTopic("u1")))
	}

	assert.True(t, pending(ch))
	assert.False(t, pending(ch), "ten publishes collapse into one pending signal")
}

func TestBroadcaster_CancelClosesChannel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, cancel := b.Subscribe(t.Context(), InboxTopic("alice"))
	assert.Equal(t, 1, b.Subscribers(InboxTopic("alice")))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers(InboxTopic("alice")))
}

func TestBroadcaster_ContextCancellationUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, InboxTopic("bob"))
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster(nil)
	require.NoError(t, b.Close())

	ch, cancel := b.Subscribe(t.Context(), InboxTopic("u1"))
	defer cancel()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, cancel := b.Subscribe(t.Context(), InboxTopic("u1"))
			cancel()
		}()
		go func() {
			defer wg.Done()
			_ = b.Publish(t.Context(), InboxTopic("u1"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.Subscribers(InboxTopic("u1")))
}

func TestTopics(t *testing.T) {
	assert.Equal(t, "messages:alice_bob", MessagesTopic("alice_bob"))
	assert.Equal(t, "inbox:alice", InboxTopic("alice"))
	assert.NotEqual(t, MessagesTopic("x"), InboxTopic("x"))
}
