// ABOUTME: SQLite implementation of the Store interface
// ABOUTME: Uses modernc.org/sqlite by default, mattn/go-sqlite3 when the cgo driver is requested

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

const (
	// DriverModernc is the pure-Go SQLite driver.
	DriverModernc = "sqlite"
	// DriverMattn is the cgo SQLite driver.
	DriverMattn = "sqlite3"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	clock  *serverClock

	// appendMu keeps timestamp assignment and insertion in the same order
	appendMu sync.Mutex
}

// NewSQLiteStore creates a new SQLite store at the given path using the
// pure-Go driver. The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverModernc, path)
}

// NewSQLiteStoreWithDriver is NewSQLiteStore with an explicit database/sql
// driver name: DriverModernc or DriverMattn.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if driver != DriverModernc && driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every pooled connection to :memory: would get its own empty database
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		clock:  newServerClock(),
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS offers (
			id             TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			from_city      TEXT NOT NULL,
			from_city_norm TEXT NOT NULL,
			from_country   TEXT NOT NULL,
			to_city        TEXT NOT NULL,
			to_city_norm   TEXT NOT NULL,
			to_country     TEXT NOT NULL,
			travel_date    TEXT NOT NULL,
			capacity_kg    REAL NOT NULL,
			price_per_kg   REAL NOT NULL,
			currency       TEXT NOT NULL,
			description    TEXT,
			status         TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			updated_at     TEXT,

			CHECK (status IN ('active', 'completed', 'cancelled', 'archived')),
			CHECK (capacity_kg >= 0.5 AND capacity_kg <= 100),
			CHECK (price_per_kg >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_offers_created ON offers(created_at DESC, id DESC);
		CREATE INDEX IF NOT EXISTS idx_offers_route ON offers(from_city_norm, to_city_norm, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_offers_owner ON offers(owner_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS conversations (
			id                  TEXT PRIMARY KEY,
			user_a              TEXT NOT NULL,
			name_a              TEXT NOT NULL DEFAULT '',
			user_b              TEXT NOT NULL,
			name_b              TEXT NOT NULL DEFAULT '',
			last_message_text   TEXT,
			last_message_sender TEXT,
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL,

			CHECK (user_a < user_b)
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_user_a ON conversations(user_a, updated_at DESC);
		CREATE INDEX IF NOT EXISTS idx_conversations_user_b ON conversations(user_b, updated_at DESC);

		CREATE TABLE IF NOT EXISTS messages (
			seq             INTEGER PRIMARY KEY AUTOINCREMENT,
			id              TEXT NOT NULL UNIQUE,
			conversation_id TEXT NOT NULL,
			sender_id       TEXT NOT NULL,
			text            TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "offers",
			column: "updated_at",
			apply:  `ALTER TABLE offers ADD COLUMN updated_at TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("pinging database", err)
	}
	return nil
}

// Stats returns row counters for the admin dashboard
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM (
				SELECT owner_id FROM offers
				UNION SELECT user_a FROM conversations
				UNION SELECT user_b FROM conversations
			)),
			(SELECT COUNT(*) FROM offers),
			(SELECT COUNT(*) FROM conversations),
			(SELECT COUNT(*) FROM messages)
	`

	var st Stats
	if err := s.db.QueryRowContext(ctx, query).Scan(&st.Users, &st.Offers, &st.Conversations, &st.Messages); err != nil {
		return nil, unavailable("querying stats", err)
	}
	return &st, nil
}

// nullString returns nil for empty strings, otherwise the string
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
