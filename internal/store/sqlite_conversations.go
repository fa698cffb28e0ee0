// ABOUTME: SQLite persistence for conversations and their append-only messages
// ABOUTME: Conversations are merge-written; messages get a server timestamp and sequence

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/voyengo/voyengo/internal/apperr"
)

// UpsertConversation creates the conversation or, if it exists, refreshes the
// supplied display names and updated_at. Participants, created_at and the
// last-message summary of an existing record are left untouched.
func (s *SQLiteStore) UpsertConversation(ctx context.Context, u *ConversationUpsert) error {
	userA, userB := sortedPair(u.Participants)
	if userA == "" || userA == userB {
		return apperr.ErrInvalidParticipants
	}

	now := formatTime(s.clock.Now())

	query := `
		INSERT INTO conversations (id, user_a, name_a, user_b, name_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name_a = CASE WHEN excluded.name_a <> '' THEN excluded.name_a ELSE conversations.name_a END,
			name_b = CASE WHEN excluded.name_b <> '' THEN excluded.name_b ELSE conversations.name_b END,
			updated_at = excluded.updated_at
		WHERE conversations.user_a = excluded.user_a AND conversations.user_b = excluded.user_b
	`

	res, err := s.db.ExecContext(ctx, query,
		u.ID,
		userA,
		u.ParticipantInfo[userA].DisplayName,
		userB,
		u.ParticipantInfo[userB].DisplayName,
		now,
		now,
	)
	if err != nil {
		return unavailable("upserting conversation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("upserting conversation", err)
	}
	if n == 0 {
		// id already belongs to a different pair
		return apperr.ErrInvalidParticipants
	}

	s.logger.Debug("upserted conversation", "id", u.ID)
	return nil
}

const conversationColumns = `
	id, user_a, name_a, user_b, name_b, last_message_text, last_message_sender, created_at, updated_at
`

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`

	conv, err := scanConversation(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("querying conversation", err)
	}
	return conv, nil
}

// UpdateConversationSummary records the last message and bumps updated_at.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) UpdateConversationSummary(ctx context.Context, id string, last LastMessage) error {
	query := `
		UPDATE conversations
		SET last_message_text = ?, last_message_sender = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, last.Text, last.SenderID, formatTime(s.clock.Now()), id)
	if err != nil {
		return unavailable("updating conversation summary", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return unavailable("getting rows affected", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversationsForUser returns the user's conversations, most recently
// updated first. If limit is 0 or negative, a default limit of 100 is used.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	limit = clampLimit(limit, 100, 1000)

	query := `SELECT ` + conversationColumns + `
		FROM conversations
		WHERE user_a = ? OR user_b = ?
		ORDER BY updated_at DESC, id ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, unavailable("querying conversations", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		convs = append(convs, *conv)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating conversation rows", err)
	}

	return convs, nil
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var c Conversation
	var userA, nameA, userB, nameB, createdAt, updatedAt string
	var lastText, lastSender sql.NullString

	if err := row.Scan(&c.ID, &userA, &nameA, &userB, &nameB, &lastText, &lastSender, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	c.Participants = []string{userA, userB}
	c.ParticipantInfo = map[string]ParticipantInfo{
		userA: {DisplayName: nameA},
		userB: {DisplayName: nameB},
	}
	if lastSender.Valid {
		c.LastMessage = &LastMessage{Text: lastText.String, SenderID: lastSender.String}
	}

	var err error
	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	c.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &c, nil
}

// AppendMessage inserts a message, assigning ID (if empty), CreatedAt and Seq.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	s.appendMu.Lock()
	defer s.appendMu.Unlock()

	createdAt := s.clock.Now()

	query := `
		INSERT INTO messages (id, conversation_id, sender_id, text, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query, msg.ID, msg.ConversationID, msg.SenderID, msg.Text, formatTime(createdAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrNotFound
		}
		return unavailable("inserting message", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return unavailable("reading message seq", err)
	}

	msg.CreatedAt = createdAt
	msg.Seq = seq

	s.logger.Debug("appended message", "id", msg.ID, "conversation_id", msg.ConversationID, "seq", seq)
	return nil
}

// isForeignKeyViolation checks if the error is a SQLite FOREIGN KEY constraint violation
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// ListMessages returns messages of a conversation with Seq greater than
// AfterSeq, ordered by (created_at, seq) ascending.
func (s *SQLiteStore) ListMessages(ctx context.Context, q MessageQuery) ([]Message, error) {
	args := []any{q.ConversationID, q.AfterSeq}
	query := `
		SELECT seq, id, conversation_id, sender_id, text, created_at
		FROM messages
		WHERE conversation_id = ? AND seq > ?
		ORDER BY created_at ASC, seq ASC
	`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("querying messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var createdAt string

		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		msg.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating message rows", err)
	}

	return messages, nil
}
