// ABOUTME: Message Stream appending messages and exposing a live ordered view per conversation
// ABOUTME: Appends are durable before the best-effort summary update and never auto-retried

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/live"
	"github.com/voyengo/voyengo/internal/notify"
	"github.com/voyengo/voyengo/internal/store"
)

// DefaultSummaryTimeout bounds the last-message summary update after a send.
const DefaultSummaryTimeout = 5 * time.Second

// MessageBackend is what the Stream needs from storage.
type MessageBackend interface {
	store.ConversationStore
	store.MessageStore
}

// StreamOptions tune a Stream.
type StreamOptions struct {
	// ResyncInterval re-reads subscriptions even without a signal. Zero disables it.
	ResyncInterval time.Duration
	// SummaryTimeout bounds the summary update; zero means DefaultSummaryTimeout.
	SummaryTimeout time.Duration
}

// Stream sends and streams the messages of conversations.
type Stream struct {
	store    MessageBackend
	notifier notify.Notifier
	opts     StreamOptions
	logger   *slog.Logger
}

// NewStream creates a Stream.
func NewStream(s MessageBackend, n notify.Notifier, opts StreamOptions, logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SummaryTimeout <= 0 {
		opts.SummaryTimeout = DefaultSummaryTimeout
	}
	return &Stream{
		store:    s,
		notifier: n,
		opts:     opts,
		logger:   logger.With("component", "conversation.stream"),
	}
}

// SendMessage appends text from senderID to the conversation and returns the
// new message id. The acting Identity in ctx must be the sender, and the
// sender must be one of the conversation's participants.
//
// A failed append is returned as is and leaves nothing behind; resubmitting is
// up to the caller. Once the append succeeds the send is reported as
// successful even if the summary update fails.
func (s *Stream) SendMessage(ctx context.Context, conversationID, senderID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperr.ErrEmptyMessage
	}

	id := auth.FromContext(ctx)
	if id == nil {
		return "", apperr.ErrUnauthenticated
	}
	if id.UserID != senderID {
		return "", apperr.ErrSenderMismatch
	}

	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", fmt.Errorf("loading conversation: %w", err)
	}
	if !conv.HasParticipant(senderID) {
		return "", apperr.ErrNotAParticipant
	}

	msg := &store.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		return "", fmt.Errorf("appending message: %w", err)
	}

	s.logger.Debug("message appended",
		"conversation_id", conversationID,
		"message_id", msg.ID,
		"seq", msg.Seq)

	if err := s.notifier.Publish(ctx, notify.MessagesTopic(conversationID)); err != nil {
		s.logger.Warn("failed to publish message change", "conversation_id", conversationID, "error", err)
	}

	s.updateSummary(ctx, conversationID, store.LastMessage{Text: text, SenderID: senderID})
	publishInboxes(ctx, s.notifier, s.logger, conv.Participants...)

	return msg.ID, nil
}

// updateSummary records the last message. It runs detached from the caller's
// cancellation so a client hanging up right after the append does not leave
// the inbox stale.
func (s *Stream) updateSummary(ctx context.Context, conversationID string, last store.LastMessage) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.SummaryTimeout)
	defer cancel()

	if err := s.store.UpdateConversationSummary(ctx, conversationID, last); err != nil {
		s.logger.Warn("failed to update conversation summary, message kept",
			"conversation_id", conversationID,
			"error", err)
	}
}

// SubscribeMessages streams the messages of a conversation in ascending
// (created_at, seq) order. The first delivery is the full history, possibly
// empty; each later delivery holds only messages not sent before.
//
// If ctx carries an Identity it must be a participant.
func (s *Stream) SubscribeMessages(ctx context.Context, conversationID string) (*live.Subscription[[]store.Message], error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if id := auth.FromContext(ctx); id != nil && !conv.HasParticipant(id.UserID) {
		return nil, apperr.ErrNotAParticipant
	}

	signals, stop := s.notifier.Subscribe(ctx, notify.MessagesTopic(conversationID))

	var afterSeq int64
	first := true
	poll := func(ctx context.Context) ([]store.Message, bool, error) {
		msgs, err := s.store.ListMessages(ctx, store.MessageQuery{
			ConversationID: conversationID,
			AfterSeq:       afterSeq,
		})
		if err != nil {
			return nil, false, fmt.Errorf("listing messages: %w", err)
		}
		for _, m := range msgs {
			afterSeq = max(afterSeq, m.Seq)
		}
		if first {
			first = false
			if msgs == nil {
				msgs = []store.Message{}
			}
			return msgs, true, nil
		}
		return msgs, len(msgs) > 0, nil
	}

	return live.Watch(ctx, live.Options{
		ResyncInterval: s.opts.ResyncInterval,
		Logger:         s.logger,
	}, signals, stop, poll), nil
}
