// ABOUTME: Conversation Inbox streaming a user's conversations ordered by recency
// ABOUTME: Resolves the other participant and sends a snapshot only when it changed

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/live"
	"github.com/voyengo/voyengo/internal/notify"
	"github.com/voyengo/voyengo/internal/store"
)

// DefaultInboxLimit caps the conversations in an inbox snapshot.
const DefaultInboxLimit = 100

// InboxEntry is one conversation as seen by the inbox owner.
type InboxEntry struct {
	Conversation     store.Conversation
	OtherUserID      string
	OtherDisplayName string
}

// InboxOptions tune an Inbox.
type InboxOptions struct {
	ResyncInterval time.Duration
	Limit          int // zero means DefaultInboxLimit
}

// Inbox streams per-user conversation lists.
type Inbox struct {
	store    store.ConversationStore
	notifier notify.Notifier
	opts     InboxOptions
	logger   *slog.Logger
}

// NewInbox creates an Inbox.
func NewInbox(s store.ConversationStore, n notify.Notifier, opts InboxOptions, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultInboxLimit
	}
	return &Inbox{
		store:    s,
		notifier: n,
		opts:     opts,
		logger:   logger.With("component", "conversation.inbox"),
	}
}

// SubscribeInbox streams snapshots of userID's conversations, most recently
// updated first. The first snapshot is always sent, possibly empty; later
// ones only when something in the list changed.
//
// If ctx carries an Identity it must be userID.
func (i *Inbox) SubscribeInbox(ctx context.Context, userID string) (*live.Subscription[[]InboxEntry], error) {
	if userID == "" {
		return nil, apperr.Invalid("user id is required")
	}
	if id := auth.FromContext(ctx); id != nil && id.UserID != userID {
		return nil, apperr.ErrIdentityMismatch
	}

	signals, stop := i.notifier.Subscribe(ctx, notify.InboxTopic(userID))

	var last []InboxEntry
	sent := false
	poll := func(ctx context.Context) ([]InboxEntry, bool, error) {
		convs, err := i.store.ListConversationsForUser(ctx, userID, i.opts.Limit)
		if err != nil {
			return nil, false, fmt.Errorf("listing conversations: %w", err)
		}
		entries := make([]InboxEntry, 0, len(convs))
		for _, c := range convs {
			entries = append(entries, newInboxEntry(c, userID))
		}
		if sent && sameSnapshot(last, entries) {
			return nil, false, nil
		}
		sent = true
		last = entries
		return entries, true, nil
	}

	return live.Watch(ctx, live.Options{
		ResyncInterval: i.opts.ResyncInterval,
		Logger:         i.logger,
	}, signals, stop, poll), nil
}

func newInboxEntry(c store.Conversation, userID string) InboxEntry {
	other := OtherParticipant(&c, userID)
	return InboxEntry{
		Conversation:     c,
		OtherUserID:      other,
		OtherDisplayName: c.ParticipantInfo[other].DisplayName,
	}
}

// sameSnapshot compares the fields an inbox renders.
func sameSnapshot(a, b []InboxEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i].Conversation, b[i].Conversation
		if x.ID != y.ID || !x.UpdatedAt.Equal(y.UpdatedAt) {
			return false
		}
		if a[i].OtherDisplayName != b[i].OtherDisplayName {
			return false
		}
		if (x.LastMessage == nil) != (y.LastMessage == nil) {
			return false
		}
		if x.LastMessage != nil && *x.LastMessage != *y.LastMessage {
			return false
		}
	}
	return true
}
