// ABOUTME: Shared fixtures for conversation package tests
// ABOUTME: Wires a MockStore and in-memory Broadcaster plus identity helpers

package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/live"
	"github.com/voyengo/voyengo/internal/notify"
	"github.com/voyengo/voyengo/internal/store"
)

type fixture struct {
	store    *store.MockStore
	notifier *notify.Broadcaster
	manager  *Manager
	stream   *Stream
	inbox    *Inbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.NewMockStore()
	n := notify.NewBroadcaster(nil)
	t.Cleanup(func() { _ = n.Close() })

	return &fixture{
		store:    s,
		notifier: n,
		manager:  NewManager(s, n, nil),
		stream:   NewStream(s, n, StreamOptions{}, nil),
		inbox:    NewInbox(s, n, InboxOptions{}, nil),
	}
}

// as returns a context acting as userID.
func as(t *testing.T, userID string) context.Context {
	return auth.WithIdentity(t.Context(), &auth.Identity{UserID: userID})
}

// ensure creates the conversation between a and b acting as a.
func (f *fixture) ensure(t *testing.T, a, nameA, b, nameB string) string {
	t.Helper()
	id, err := f.manager.EnsureConversation(as(t, a), EnsureRequest{
		ActingUserID:      a,
		ActingDisplayName: nameA,
		OtherUserID:       b,
		OtherDisplayName:  nameB,
	})
	require.NoError(t, err)
	return id
}

func next[T any](t *testing.T, sub *live.Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.Updates():
		require.True(t, ok, "updates closed early: %v", sub.Err())
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
	}
	var zero T
	return zero
}

func noUpdate[T any](t *testing.T, sub *live.Subscription[T]) {
	t.Helper()
	select {
	case v := <-sub.Updates():
		t.Fatalf("unexpected update: %v", v)
	case <-time.After(100 * time.Millisecond):
	}
}
