// ABOUTME: Tests for the retrying Store decorator
// ABOUTME: Verifies transient failures are retried and everything else is not

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyengo/voyengo/internal/apperr"
)

func newRetryFixture(t *testing.T, attempts int) (*MockStore, Store) {
	t.Helper()
	m := NewMockStore()
	require.NoError(t, m.UpsertConversation(context.Background(), upsertFixture("alice", "Alice", "bob", "Bob")))
	return m, WithRetry(m, RetryConfig{Attempts: attempts, BaseDelay: time.Millisecond})
}

func TestWithRetry_DisabledReturnsStore(t *testing.T) {
	m := NewMockStore()
	assert.Same(t, m, WithRetry(m, RetryConfig{Attempts: 1}).(*MockStore))
}

func TestWithRetry_RecoversFromTransientFailure(t *testing.T) {
	m, s := newRetryFixture(t, 3)
	transient := apperr.Unavailable("querying conversation", errors.New("database is locked"))
	m.FailNext("GetConversation", transient, transient)

	conv, err := s.GetConversation(context.Background(), "alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", conv.ID)
	assert.Equal(t, 3, m.Calls("GetConversation"))
}

func TestWithRetry_GivesUpAfterAttempts(t *testing.T) {
	m, s := newRetryFixture(t, 3)
	transient := apperr.Unavailable("upserting conversation", errors.New("connection reset"))
	m.FailNext("UpsertConversation", transient, transient, transient, transient)

	err := s.UpsertConversation(context.Background(), upsertFixture("alice", "Alice", "bob", "Bob"))
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, 1+3, m.Calls("UpsertConversation"), "fixture upsert plus three attempts")
}

func TestWithRetry_DoesNotRetryPermanentErrors(t *testing.T) {
	m, s := newRetryFixture(t, 5)

	_, err := s.GetOffer(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, m.Calls("GetOffer"))
}

func TestWithRetry_NeverRetriesAppend(t *testing.T) {
	m, s := newRetryFixture(t, 5)
	m.FailNext("AppendMessage", apperr.Unavailable("inserting message", errors.New("timeout")))

	err := s.AppendMessage(context.Background(), &Message{ConversationID: "alice_bob", SenderID: "alice", Text: "hi"})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, 1, m.Calls("AppendMessage"))

	msgs, err := s.ListMessages(context.Background(), MessageQuery{ConversationID: "alice_bob"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWithRetry_StopsOnContextCancel(t *testing.T) {
	m, s := newRetryFixture(t, 100)
	for range 100 {
		m.FailNext("Stats", apperr.Unavailable("querying stats", errors.New("down")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Stats(ctx)
	require.Error(t, err)
	assert.Less(t, m.Calls("Stats"), 100)
}
