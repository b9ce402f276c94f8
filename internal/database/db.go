package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	schema "github.com/trogers1052/rsi-trader/db"
	"github.com/trogers1052/rsi-trader/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the PostgreSQL connection pool
type DB struct {
	conn *sql.DB
}

// New opens a connection pool and verifies it with a ping
func New(connStr string) (*DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Migrate applies all embedded migrations
func (db *DB) Migrate() error {
	source, err := iofs.New(schema.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success and rolling back on error
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockSymbol serializes writers of one symbol until the transaction ends. The
// row lock alone cannot cover a symbol with no position row yet.
func lockSymbol(ctx context.Context, tx *sql.Tx, symbol string) error {
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, symbol); err != nil {
		return fmt.Errorf("failed to lock position %s: %w", symbol, err)
	}
	return nil
}

// modifyPosition passes the position for symbol (nil when absent) to fn and
// writes back the result inside tx. A nil result deletes. The caller must hold
// the symbol lock.
func modifyPosition(ctx context.Context, tx *sql.Tx, symbol string, fn func(*models.Position) (*models.Position, error)) error {
	current, err := scanPosition(tx.QueryRowContext(ctx, `
		SELECT id, symbol, qty, avg_price, entry_date, created_at, updated_at
		FROM positions
		WHERE symbol = $1
		FOR UPDATE
	`, symbol))
	if errors.Is(err, ErrNotFound) {
		current = nil
	} else if err != nil {
		return fmt.Errorf("failed to lock position %s: %w", symbol, err)
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	if next == nil {
		if current == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE symbol = $1`, symbol); err != nil {
			return fmt.Errorf("failed to delete position %s: %w", symbol, err)
		}
		return nil
	}

	return upsertPosition(ctx, tx, next)
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}
