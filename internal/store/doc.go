// Package store provides persistence for offers, conversations and messages.
//
// # Architecture
//
// The store package is interface-driven:
//
//   - OfferStore: offer CRUD and the filtered, cursor-paginated listing
//   - ConversationStore: merge-write upserts, summaries and per-user listing
//   - MessageStore: append-only messages with a server-assigned order
//
// Store composes all three plus Stats, Ping and Close. Three backends
// implement it:
//
//   - SQLiteStore: modernc.org/sqlite by default, mattn/go-sqlite3 on request
//   - PostgresStore: pgxpool with goose migrations embedded in the binary
//   - MockStore: in-memory, for unit tests
//
// WithRetry wraps any Store and retries idempotent operations that failed
// with apperr.ErrUnavailable. AppendMessage and CreateOffer are never retried.
//
// # Ordering
//
// Every backend assigns CreatedAt from its own clock, which never moves
// backwards. Messages also receive a Seq from the backend; messages are ordered
// by (CreatedAt, Seq). Offers are listed newest first by (CreatedAt, ID), and
// the listing cursor encodes the last row in exactly that order.
//
// Timestamps are stored as fixed-width UTC text so that lexical comparison in
// SQL matches chronological order:
//
//	2025-06-01T08:30:00.000000Z
//
// # Errors
//
//   - ErrNotFound: requested entity does not exist
//   - apperr.ErrInvalidCursor: the offer cursor could not be decoded
//   - apperr.ErrUnavailable: backend failure, safe to retry for idempotent calls
//
// # Testing
//
// Use NewMockStore() for unit tests. Use NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
// for tests against real SQL. PostgresStore tests run only when
// TEST_DATABASE_URL is set.
package store
