// ABOUTME: HTTP handlers for conversations, messages and the inbox
// ABOUTME: Message sends honour an Idempotency-Key header so clients can resubmit safely

package gateway

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/voyengo/voyengo/internal/auth"
	"github.com/voyengo/voyengo/internal/conversation"
	"github.com/voyengo/voyengo/internal/store"
)

// IdempotencyKeyHeader carries the client-chosen resubmission key.
const IdempotencyKeyHeader = "Idempotency-Key"

type ensureConversationRequest struct {
	OtherUserID      string `json:"other_user_id"`
	OtherDisplayName string `json:"other_display_name"`
}

type ensureConversationResponse struct {
	ConversationID string `json:"conversation_id"`
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	Replayed  bool   `json:"replayed,omitempty"`
}

// handleEnsureConversation creates or refreshes the conversation between the
// caller and another user.
func (g *Gateway) handleEnsureConversation(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())

	var req ensureConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	convID, err := g.manager.EnsureConversation(r.Context(), conversation.EnsureRequest{
		ActingUserID:      id.UserID,
		ActingDisplayName: id.DisplayName,
		OtherUserID:       req.OtherUserID,
		OtherDisplayName:  req.OtherDisplayName,
	})
	if err != nil {
		g.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, ensureConversationResponse{ConversationID: convID})
}

// handleSendMessage appends a message as the caller. A repeated
// Idempotency-Key returns the original message id with 200 instead of 201.
func (g *Gateway) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	convID := chi.URLParam(r, "id")

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		g.writeError(w, r, err)
		return
	}

	send := func() (string, error) {
		return g.stream.SendMessage(r.Context(), convID, id.UserID, req.Text)
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" {
		msgID, err := send()
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sendMessageResponse{MessageID: msgID})
		return
	}

	msgID, replayed, err := g.idempotency.Do(id.UserID+"|"+convID+"|"+key, send)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if replayed {
		status = http.StatusOK
		g.logger.Debug("replayed message send", "conversation_id", convID, "message_id", msgID)
	}
	writeJSON(w, status, sendMessageResponse{MessageID: msgID, Replayed: replayed})
}

// handleStreamMessages streams a conversation's messages as SSE "messages" events.
func (g *Gateway) handleStreamMessages(w http.ResponseWriter, r *http.Request) {
	sub, err := g.stream.SubscribeMessages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	streamSSE(g, w, r, sub, "messages", func(msgs []store.Message) any {
		return toMessageList(msgs)
	})
}

// handleStreamInbox streams the caller's conversation list as SSE "inbox" events.
func (g *Gateway) handleStreamInbox(w http.ResponseWriter, r *http.Request) {
	id := auth.MustFromContext(r.Context())
	sub, err := g.inbox.SubscribeInbox(r.Context(), id.UserID)
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	streamSSE(g, w, r, sub, "inbox", func(entries []conversation.InboxEntry) any {
		return toInboxList(entries)
	})
}
