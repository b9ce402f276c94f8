package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// execer is satisfied by both *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetAllPositions retrieves every open position ordered by symbol
func (db *DB) GetAllPositions(ctx context.Context) ([]*models.Position, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, symbol, qty, avg_price, entry_date, created_at, updated_at
		FROM positions
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate positions: %w", err)
	}
	return positions, nil
}

// GetPositionBySymbol retrieves the open position for a symbol
func (db *DB) GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error) {
	p, err := scanPosition(db.conn.QueryRowContext(ctx, `
		SELECT id, symbol, qty, avg_price, entry_date, created_at, updated_at
		FROM positions
		WHERE symbol = $1
	`, symbol))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	return p, err
}

// UpsertPosition inserts a position or replaces quantity and average price of
// an existing one. The entry date of an existing position is kept.
func (db *DB) UpsertPosition(ctx context.Context, p *models.Position) error {
	return upsertPosition(ctx, db.conn, p)
}

// DeletePositionBySymbol removes the position for a symbol
func (db *DB) DeletePositionBySymbol(ctx context.Context, symbol string) error {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM positions WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("failed to delete position %s: %w", symbol, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("position %s: %w", symbol, ErrNotFound)
	}
	return nil
}

func upsertPosition(ctx context.Context, q execer, p *models.Position) error {
	if p.Quantity <= 0 {
		return fmt.Errorf("refusing to store %s with quantity %d", p.Symbol, p.Quantity)
	}

	now := time.Now()
	entry := p.EntryDate
	if entry.IsZero() {
		entry = now
	}

	err := q.QueryRowContext(ctx, `
		INSERT INTO positions (symbol, qty, avg_price, entry_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (symbol) DO UPDATE SET
			qty = EXCLUDED.qty,
			avg_price = EXCLUDED.avg_price,
			updated_at = EXCLUDED.updated_at
		RETURNING id, entry_date, created_at
	`, p.Symbol, p.Quantity, p.AvgPrice, entry, now).Scan(&p.ID, &p.EntryDate, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert position %s: %w", p.Symbol, err)
	}
	p.UpdatedAt = now
	return nil
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	err := row.Scan(&p.ID, &p.Symbol, &p.Quantity, &p.AvgPrice, &p.EntryDate, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan position: %w", err)
	}
	return &p, nil
}
