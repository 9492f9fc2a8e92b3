// Package store persists leads, scripts and call attempts.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/soyeahso/outreach/internal/logging"
)

// InMemory opens a private database that lives as long as the DB.
const InMemory = ":memory:"

// Connection pragmas, applied by the driver to every pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(ON)",
	"busy_timeout(5000)",
}

// DB is the SQLite-backed Store.
type DB struct {
	sql  *sql.DB
	log  *logging.Logger
	path string
}

// Open opens or creates the database at path and brings its schema up to
// date.
func Open(path string, log *logging.Logger) (*DB, error) {
	if path != InMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %s: %w", path, err)
	}
	if path == InMemory {
		// each connection would get its own empty database
		conn.SetMaxOpenConns(1)
	}

	db := &DB{sql: conn, log: log.Sub("store"), path: path}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	db.log.Info().Str("path", path).Int("schema", len(migrations)).Msg("store ready")
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	if path == InMemory {
		return InMemory + "?" + q.Encode()
	}
	return "file:" + path + "?" + q.Encode()
}

// Path is where the database lives, or InMemory.
func (db *DB) Path() string { return db.path }

func (db *DB) Close() error {
	db.log.Debug().Str("path", db.path).Msg("closing store")
	return db.sql.Close()
}

// SchemaVersion is the number of migrations applied, kept in user_version.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := db.sql.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// migrate applies migrations past the recorded schema version, each in its
// own transaction together with the version bump.
func (db *DB) migrate(ctx context.Context) error {
	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("database schema %d is newer than this build (%d)", current, len(migrations))
	}

	for i, m := range migrations[current:] {
		version := current + i + 1
		db.log.Info().Int("version", version).Str("name", m.name).Msg("applying migration")
		err := db.withTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, m.up); err != nil {
				return err
			}
			// PRAGMA takes no bind parameters.
			_, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version))
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", version, m.name, err)
		}
	}
	return nil
}

// withTx runs fn in a transaction, committing when it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
