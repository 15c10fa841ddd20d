// Package postgres implements the store.CursorStore interface backed by
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/chattobot/internal/model"
	"github.com/alfredjeanlab/chattobot/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.CursorStore backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.CursorStore.
var _ store.CursorStore = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-migrated database handle.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const (
	selectCursors = `SELECT space_id, last_event_id, last_timestamp FROM replay_cursors`
	deleteCursors = `DELETE FROM replay_cursors`
	upsertCursor  = `INSERT INTO replay_cursors (space_id, last_event_id, last_timestamp, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (space_id) DO UPDATE SET last_event_id = EXCLUDED.last_event_id,
    last_timestamp = EXCLUDED.last_timestamp, updated_at = now()`
)

// Load returns every persisted cursor.
func (s *PostgresStore) Load(ctx context.Context) (model.Cursors, error) {
	rows, err := s.db.QueryContext(ctx, selectCursors)
	if err != nil {
		return nil, fmt.Errorf("query cursors: %w", err)
	}
	defer rows.Close()

	out := model.Cursors{}
	for rows.Next() {
		var space string
		var c model.Cursor
		if err := rows.Scan(&space, &c.LastEventID, &c.LastTimestamp); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		c.LastTimestamp = c.LastTimestamp.UTC()
		out[space] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", err)
	}
	return out, nil
}

// Save replaces the persisted cursors in one transaction.
func (s *PostgresStore) Save(ctx context.Context, cursors model.Cursors) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, deleteCursors); err != nil {
		return fmt.Errorf("clear cursors: %w", err)
	}
	for _, space := range sortedSpaces(cursors) {
		c := cursors[space]
		if _, err := tx.ExecContext(ctx, upsertCursor, space, c.LastEventID, c.LastTimestamp); err != nil {
			return fmt.Errorf("save cursor %s: %w", space, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cursors: %w", err)
	}
	return nil
}
