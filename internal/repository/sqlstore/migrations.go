package sqlstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// migration is one schema step. Steps are applied in order, each in its own
// transaction, and recorded in schema_migrations so they never run twice.
type migration struct {
	version int
	name    string
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "users and profiles",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				email         TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				name          TEXT NOT NULL DEFAULT '',
				username      TEXT NOT NULL DEFAULT '',
				github_id     BIGINT UNIQUE,
				created_at    TIMESTAMP NOT NULL,
				updated_at    TIMESTAMP NOT NULL
			)`,
			// GitHub accounts may hide their email, so only non-empty emails
			// are unique.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (LOWER(email)) WHERE email <> ''`,
			`CREATE TABLE IF NOT EXISTS profiles (
				id         TEXT PRIMARY KEY,
				username   TEXT,
				name       TEXT NOT NULL DEFAULT '',
				email      TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_username ON profiles (LOWER(username))`,
		},
	},
	{
		version: 2,
		name:    "friend requests",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS friend_requests (
				id           TEXT PRIMARY KEY,
				requester_id TEXT NOT NULL,
				addressee_id TEXT NOT NULL,
				user_low     TEXT NOT NULL,
				user_high    TEXT NOT NULL,
				status       TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'declined')),
				created_at   TIMESTAMP NOT NULL,
				updated_at   TIMESTAMP NOT NULL,
				CHECK (requester_id <> addressee_id)
			)`,
			// One live relationship per unordered pair. Declined rows are
			// history and do not block a new request.
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_friend_requests_active_pair
				ON friend_requests (user_low, user_high)
				WHERE status IN ('pending', 'accepted')`,
			`CREATE INDEX IF NOT EXISTS idx_friend_requests_requester ON friend_requests (requester_id)`,
			`CREATE INDEX IF NOT EXISTS idx_friend_requests_addressee ON friend_requests (addressee_id)`,
		},
	},
	{
		version: 3,
		name:    "lists, restaurants and comments",
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS lists (
				id          TEXT PRIMARY KEY,
				creator_id  TEXT NOT NULL,
				title       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				created_at  TIMESTAMP NOT NULL,
				updated_at  TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_lists_creator ON lists (creator_id)`,
			`CREATE TABLE IF NOT EXISTS restaurants (
				id          TEXT PRIMARY KEY,
				list_id     TEXT NOT NULL REFERENCES lists (id) ON DELETE CASCADE,
				created_by  TEXT NOT NULL,
				name        TEXT NOT NULL,
				rating      DOUBLE PRECISION,
				tags        TEXT NOT NULL DEFAULT '[]',
				address     TEXT NOT NULL DEFAULT '',
				hours       TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				image_url   TEXT NOT NULL DEFAULT '',
				image_path  TEXT NOT NULL DEFAULT '',
				image_alt   TEXT NOT NULL DEFAULT '',
				website     TEXT NOT NULL DEFAULT '',
				maps_link   TEXT NOT NULL DEFAULT '',
				created_at  TIMESTAMP NOT NULL,
				updated_at  TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_restaurants_list ON restaurants (list_id)`,
			`CREATE TABLE IF NOT EXISTS comments (
				id            TEXT PRIMARY KEY,
				restaurant_id TEXT NOT NULL REFERENCES restaurants (id) ON DELETE CASCADE,
				author_id     TEXT NOT NULL,
				content       TEXT NOT NULL,
				created_at    TIMESTAMP NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_comments_restaurant ON comments (restaurant_id)`,
		},
	},
}

// Migrate applies every migration not yet recorded in schema_migrations.
func (s *DB) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`); err != nil {
		return fmt.Errorf("sqlstore: creating schema_migrations: %w", err)
	}

	var applied []int
	if err := s.db.SelectContext(ctx, &applied, `SELECT version FROM schema_migrations`); err != nil {
		return fmt.Errorf("sqlstore: reading schema_migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		s.logger.Info("migration applied",
			slog.Int("version", m.version),
			slog.String("name", m.name),
		)
	}
	return nil
}

func (s *DB) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: migration %d: begin: %w", m.version, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlstore: migration %d (%s): %w", m.version, m.name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
		m.version, m.name, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("sqlstore: recording migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

// Version returns the highest applied migration, 0 for an empty database.
func (s *DB) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("sqlstore: reading schema version: %w", err)
	}
	return v, nil
}
