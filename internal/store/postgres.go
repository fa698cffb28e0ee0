// ABOUTME: Postgres implementation of the Store interface on a pgx connection pool
// ABOUTME: Schema is managed by goose migrations embedded in the migrations package

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/voyengo/voyengo/internal/apperr"
	"github.com/voyengo/voyengo/internal/store/migrations"
)

const pgForeignKeyViolation = "23503"

// PostgresStore implements the Store interface using Postgres
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	clock  *serverClock
}

// NewPostgresStore connects to dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating database pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Postgres store initialized")
	return &PostgresStore{pool: pool, logger: logger, clock: newServerClock()}, nil
}

// migrate runs goose over a database/sql handle borrowed from the pool.
func migrate(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, migrations.FS)
	if err != nil {
		return fmt.Errorf("creating goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	for _, r := range results {
		logger.Info("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.logger.Info("closing Postgres store")
	s.pool.Close()
	return nil
}

// Ping checks that the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("pinging database", err)
	}
	return nil
}

// Stats returns row counters for the admin dashboard
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	const q = `
		SELECT
			(SELECT COUNT(*) FROM (
				SELECT owner_id FROM offers
				UNION SELECT user_a FROM conversations
				UNION SELECT user_b FROM conversations
			) AS u),
			(SELECT COUNT(*) FROM offers),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages)`

	var st Stats
	if err := s.pool.QueryRow(ctx, q).Scan(&st.Users, &st.Offers, &st.Conversations, &st.Messages); err != nil {
		return nil, unavailable("querying stats", err)
	}
	return &st, nil
}

const pgOfferColumns = `
	id, owner_id, from_city, from_country, to_city, to_country, travel_date,
	capacity_kg, price_per_kg, currency, description, status, created_at, updated_at`

// CreateOffer inserts a new offer. CreatedAt is assigned by the store.
func (s *PostgresStore) CreateOffer(ctx context.Context, offer *Offer) error {
	offer.CreatedAt = s.clock.Now()
	offer.UpdatedAt = nil

	const q = `
		INSERT INTO offers (
			id, owner_id, from_city, from_city_norm, from_country, to_city, to_city_norm, to_country,
			travel_date, capacity_kg, price_per_kg, currency, description, status, created_at
		) VALUES (
			@id, @owner_id, @from_city, @from_city_norm, @from_country, @to_city, @to_city_norm, @to_country,
			@travel_date::date, @capacity_kg, @price_per_kg, @currency, @description, @status, @created_at
		)`

	args := offerArgs(offer)
	args["owner_id"] = offer.OwnerID
	args["created_at"] = offer.CreatedAt

	if _, err := s.pool.Exec(ctx, q, args); err != nil {
		return unavailable("inserting offer", err)
	}

	s.logger.Debug("created offer", "id", offer.ID, "owner_id", offer.OwnerID)
	return nil
}

func offerArgs(offer *Offer) pgx.NamedArgs {
	return pgx.NamedArgs{
		"id":             offer.ID,
		"from_city":      offer.Route.From.City,
		"from_city_norm": NormalizeCity(offer.Route.From.City),
		"from_country":   offer.Route.From.Country,
		"to_city":        offer.Route.To.City,
		"to_city_norm":   NormalizeCity(offer.Route.To.City),
		"to_country":     offer.Route.To.Country,
		"travel_date":    offer.TravelDate.String(),
		"capacity_kg":    offer.CapacityKg,
		"price_per_kg":   offer.PricePerKg,
		"currency":       offer.Currency,
		"description":    nullString(offer.Description),
		"status":         string(offer.Status),
	}
}

// GetOffer retrieves an offer by ID.
// Returns ErrNotFound if the offer doesn't exist.
func (s *PostgresStore) GetOffer(ctx context.Context, id string) (*Offer, error) {
	q := `SELECT ` + pgOfferColumns + ` FROM offers WHERE id = @id`

	offer, err := scanPgOffer(s.pool.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("querying offer", err)
	}
	return offer, nil
}

// UpdateOffer overwrites the mutable fields of an offer and stamps UpdatedAt.
// Returns ErrNotFound if the offer doesn't exist.
func (s *PostgresStore) UpdateOffer(ctx context.Context, offer *Offer) error {
	now := s.clock.Now()

	const q = `
		UPDATE offers
		SET from_city    = @from_city,
		    from_city_norm = @from_city_norm,
		    from_country = @from_country,
		    to_city      = @to_city,
		    to_city_norm = @to_city_norm,
		    to_country   = @to_country,
		    travel_date  = @travel_date::date,
		    capacity_kg  = @capacity_kg,
		    price_per_kg = @price_per_kg,
		    currency     = @currency,
		    description  = @description,
		    status       = @status,
		    updated_at   = @updated_at
		WHERE id = @id`

	args := offerArgs(offer)
	args["updated_at"] = now

	tag, err := s.pool.Exec(ctx, q, args)
	if err != nil {
		return unavailable("updating offer", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	offer.UpdatedAt = &now
	s.logger.Debug("updated offer", "id", offer.ID)
	return nil
}

// ListOffers returns one page of offers, newest first, matching every filter
// that is set. HasMore is reported whenever the page comes back full.
func (s *PostgresStore) ListOffers(ctx context.Context, q OfferQuery) (*OfferPage, error) {
	if q.Limit <= 0 {
		return nil, fmt.Errorf("listing offers: %w", apperr.ErrInvalidPageSize)
	}

	var cursor *offerCursor
	if q.Cursor != "" {
		var err error
		cursor, err = decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
	}

	args := pgx.NamedArgs{"limit": q.Limit}
	var where []string

	if q.FromCity != "" {
		where = append(where, `from_city_norm = @from_city`)
		args["from_city"] = q.FromCity
	}
	if q.ToCity != "" {
		where = append(where, `to_city_norm = @to_city`)
		args["to_city"] = q.ToCity
	}
	if q.MinTravelDate != nil {
		where = append(where, `travel_date >= @min_travel_date::date`)
		args["min_travel_date"] = q.MinTravelDate.String()
	}
	if q.Status != "" {
		where = append(where, `status = @status`)
		args["status"] = string(q.Status)
	}
	if cursor != nil {
		where = append(where, `(created_at, id) < (@cursor_ts, @cursor_id)`)
		args["cursor_ts"] = cursor.CreatedAt
		args["cursor_id"] = cursor.ID
	}

	query := `SELECT ` + pgOfferColumns + ` FROM offers`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT @limit`

	offers, err := s.queryOffers(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return pageFromRows(offers, q.Limit), nil
}

// ListOffersByOwner returns the owner's offers, newest first.
func (s *PostgresStore) ListOffersByOwner(ctx context.Context, ownerID string, limit int) ([]Offer, error) {
	q := `SELECT ` + pgOfferColumns + `
		FROM offers
		WHERE owner_id = @owner_id
		ORDER BY created_at DESC, id DESC
		LIMIT @limit`

	return s.queryOffers(ctx, q, pgx.NamedArgs{"owner_id": ownerID, "limit": clampLimit(limit, 100, 500)})
}

func (s *PostgresStore) queryOffers(ctx context.Context, query string, args pgx.NamedArgs) ([]Offer, error) {
	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return nil, unavailable("querying offers", err)
	}
	defer rows.Close()

	var offers []Offer
	for rows.Next() {
		offer, err := scanPgOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning offer row: %w", err)
		}
		offers = append(offers, *offer)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating offer rows", err)
	}
	return offers, nil
}

func scanPgOffer(row rowScanner) (*Offer, error) {
	var (
		o           Offer
		travelDate  pgtype.Date
		description pgtype.Text
		status      string
		updatedAt   pgtype.Timestamptz
	)

	if err := row.Scan(
		&o.ID,
		&o.OwnerID,
		&o.Route.From.City,
		&o.Route.From.Country,
		&o.Route.To.City,
		&o.Route.To.Country,
		&travelDate,
		&o.CapacityKg,
		&o.PricePerKg,
		&o.Currency,
		&description,
		&status,
		&o.CreatedAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	o.TravelDate = DateOf(travelDate.Time)
	o.Description = description.String
	o.Status = OfferStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	if updatedAt.Valid {
		t := updatedAt.Time.UTC()
		o.UpdatedAt = &t
	}
	return &o, nil
}

// UpsertConversation creates the conversation or refreshes the supplied
// display names and updated_at of an existing one.
func (s *PostgresStore) UpsertConversation(ctx context.Context, u *ConversationUpsert) error {
	userA, userB := sortedPair(u.Participants)
	if userA == "" || userA == userB {
		return apperr.ErrInvalidParticipants
	}

	const q = `
		INSERT INTO conversations (id, user_a, name_a, user_b, name_b, created_at, updated_at)
		VALUES (@id, @user_a, @name_a, @user_b, @name_b, @now, @now)
		ON CONFLICT (id) DO UPDATE SET
			name_a = CASE WHEN excluded.name_a <> '' THEN excluded.name_a ELSE conversations.name_a END,
			name_b = CASE WHEN excluded.name_b <> '' THEN excluded.name_b ELSE conversations.name_b END,
			updated_at = excluded.updated_at
		WHERE conversations.user_a = excluded.user_a AND conversations.user_b = excluded.user_b`

	args := pgx.NamedArgs{
		"id":     u.ID,
		"user_a": userA,
		"name_a": u.ParticipantInfo[userA].DisplayName,
		"user_b": userB,
		"name_b": u.ParticipantInfo[userB].DisplayName,
		"now":    s.clock.Now(),
	}

	tag, err := s.pool.Exec(ctx, q, args)
	if err != nil {
		return unavailable("upserting conversation", err)
	}
	if tag.RowsAffected() == 0 {
		// id already belongs to a different pair
		return apperr.ErrInvalidParticipants
	}

	s.logger.Debug("upserted conversation", "id", u.ID)
	return nil
}

const pgConversationColumns = `
	id, user_a, name_a, user_b, name_b, last_message_text, last_message_sender, created_at, updated_at`

// GetConversation retrieves a conversation by ID.
// Returns ErrNotFound if the conversation doesn't exist.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	q := `SELECT ` + pgConversationColumns + ` FROM conversations WHERE id = @id`

	conv, err := scanPgConversation(s.pool.QueryRow(ctx, q, pgx.NamedArgs{"id": id}))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("querying conversation", err)
	}
	return conv, nil
}

// UpdateConversationSummary records the last message and bumps updated_at.
func (s *PostgresStore) UpdateConversationSummary(ctx context.Context, id string, last LastMessage) error {
	const q = `
		UPDATE conversations
		SET last_message_text = @text, last_message_sender = @sender, updated_at = @now
		WHERE id = @id`

	tag, err := s.pool.Exec(ctx, q, pgx.NamedArgs{
		"id":     id,
		"text":   last.Text,
		"sender": last.SenderID,
		"now":    s.clock.Now(),
	})
	if err != nil {
		return unavailable("updating conversation summary", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListConversationsForUser returns the user's conversations, most recently
// updated first.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID string, limit int) ([]Conversation, error) {
	q := `SELECT ` + pgConversationColumns + `
		FROM conversations
		WHERE user_a = @user OR user_b = @user
		ORDER BY updated_at DESC, id ASC
		LIMIT @limit`

	rows, err := s.pool.Query(ctx, q, pgx.NamedArgs{"user": userID, "limit": clampLimit(limit, 100, 1000)})
	if err != nil {
		return nil, unavailable("querying conversations", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		conv, err := scanPgConversation(rows)
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

func scanPgConversation(row rowScanner) (*Conversation, error) {
	var (
		c                    Conversation
		userA, nameA         string
		userB, nameB         string
		lastText, lastSender pgtype.Text
		createdAt, updatedAt time.Time
	)

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
	c.CreatedAt = createdAt.UTC()
	c.UpdatedAt = updatedAt.UTC()
	return &c, nil
}

// AppendMessage inserts a message, assigning ID (if empty), CreatedAt and Seq.
// A transaction-scoped advisory lock per conversation serializes appends from
// every gateway process, and created_at is never earlier than the newest
// message already stored for the conversation.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}

	now := s.clock.Now()

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext(@id))`, pgx.NamedArgs{"id": msg.ConversationID}); err != nil {
			return err
		}

		const q = `
			INSERT INTO messages (id, conversation_id, sender_id, text, created_at)
			SELECT @id, @conversation_id, @sender_id, @text,
			       GREATEST(@now::timestamptz, COALESCE(MAX(created_at), @now::timestamptz))
			FROM messages
			WHERE conversation_id = @conversation_id
			RETURNING seq, created_at`

		return tx.QueryRow(ctx, q, pgx.NamedArgs{
			"id":              msg.ID,
			"conversation_id": msg.ConversationID,
			"sender_id":       msg.SenderID,
			"text":            msg.Text,
			"now":             now,
		}).Scan(&msg.Seq, &msg.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrNotFound
		}
		return unavailable("inserting message", err)
	}

	msg.CreatedAt = msg.CreatedAt.UTC()
	s.logger.Debug("appended message", "id", msg.ID, "conversation_id", msg.ConversationID, "seq", msg.Seq)
	return nil
}

// ListMessages returns messages of a conversation with Seq greater than
// AfterSeq, ordered by (created_at, seq) ascending.
func (s *PostgresStore) ListMessages(ctx context.Context, q MessageQuery) ([]Message, error) {
	args := pgx.NamedArgs{"conversation_id": q.ConversationID, "after": q.AfterSeq}
	query := `
		SELECT seq, id, conversation_id, sender_id, text, created_at
		FROM messages
		WHERE conversation_id = @conversation_id AND seq > @after
		ORDER BY created_at ASC, seq ASC`
	if q.Limit > 0 {
		query += ` LIMIT @limit`
		args["limit"] = q.Limit
	}

	rows, err := s.pool.Query(ctx, query, args)
	if err != nil {
		return nil, unavailable("querying messages", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Seq, &msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.CreatedAt = msg.CreatedAt.UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterating message rows", err)
	}
	return messages, nil
}
