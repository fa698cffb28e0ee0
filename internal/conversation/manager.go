// ABOUTME: Conversation Manager creating or refreshing two-party conversations idempotently
// ABOUTME: Merge-writes participant names and signals both participants' inboxes

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/notify"
	"github.com/voyengo/voyengo/internal/store"
)

// EnsureRequest names both sides of a first contact. Display names are
// snapshots; empty names leave the stored snapshot unchanged.
type EnsureRequest struct {
	ActingUserID      string
	ActingDisplayName string
	OtherUserID       string
	OtherDisplayName  string
}

// Manager creates conversations.
type Manager struct {
	store    store.ConversationStore
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewManager creates a Manager.
func NewManager(s store.ConversationStore, n notify.Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    s,
		notifier: n,
		logger:   logger.With("component", "conversation.manager"),
	}
}

// EnsureConversation creates the conversation between the two users, or
// refreshes its name snapshots and updated_at if it already exists, and
// returns its id. It never clears an existing last-message summary.
//
// If the context carries an Identity it must be the acting user.
func (m *Manager) EnsureConversation(ctx context.Context, req EnsureRequest) (string, error) {
	acting := strings.TrimSpace(req.ActingUserID)
	other := strings.TrimSpace(req.OtherUserID)
	if acting == "" || other == "" || acting == other {
		return "", apperr.ErrInvalidParticipants
	}
	// the id would be ambiguous: (a_b, c) and (a, b_c) both give a_b_c
	if strings.Contains(acting, Separator) || strings.Contains(other, Separator) {
		return "", apperr.ErrInvalidParticipants
	}
	if id := auth.FromContext(ctx); id != nil && id.UserID != acting {
		return "", apperr.ErrIdentityMismatch
	}

	convID := ConversationID(acting, other)
	upsert := &store.ConversationUpsert{
		ID:           convID,
		Participants: [2]string{acting, other},
		ParticipantInfo: map[string]store.ParticipantInfo{
			acting: {DisplayName: strings.TrimSpace(req.ActingDisplayName)},
			other:  {DisplayName: strings.TrimSpace(req.OtherDisplayName)},
		},
	}
	if err := m.store.UpsertConversation(ctx, upsert); err != nil {
		return "", fmt.Errorf("ensuring conversation: %w", err)
	}

	m.logger.Debug("conversation ensured", "conversation_id", convID)
	publishInboxes(ctx, m.notifier, m.logger, acting, other)
	return convID, nil
}

// publishInboxes signals the inbox topics of the given users. Failures are
// logged: the write already succeeded and subscribers resync on their own.
func publishInboxes(ctx context.Context, n notify.Notifier, logger *slog.Logger, userIDs ...string) {
	for _, u := range userIDs {
		if err := n.Publish(ctx, notify.InboxTopic(u)); err != nil {
			logger.Warn("failed to publish inbox change", "user_id", u, "error", err)
		}
	}
}
