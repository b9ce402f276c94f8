package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// RecordFill claims f.OrderID and applies the fill to its position in one
// transaction. fn receives the current position (nil when absent) and returns
// the next one; nil deletes. When the order id was already recorded nothing is
// written and applied is false.
func (db *DB) RecordFill(ctx context.Context, f *models.Fill, fn func(*models.Position) (*models.Position, error)) (bool, error) {
	applied := false
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := lockSymbol(ctx, tx, f.Symbol); err != nil {
			return err
		}

		now := time.Now()
		err := tx.QueryRowContext(ctx, `
			INSERT INTO fills (order_id, source, symbol, side, qty, price, executed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (order_id) DO NOTHING
			RETURNING id
		`, f.OrderID, f.Source, f.Symbol, f.Side, f.Quantity, f.Price, f.ExecutedAt, now).Scan(&f.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to record fill %s: %w", f.OrderID, err)
		}
		f.CreatedAt = now

		if err := modifyPosition(ctx, tx, f.Symbol, fn); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// GetFillsBySymbol retrieves fills for a symbol, newest first
func (db *DB) GetFillsBySymbol(ctx context.Context, symbol string, limit int) ([]*models.Fill, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, order_id, source, symbol, side, qty, price, executed_at, created_at
		FROM fills
		WHERE symbol = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fills: %w", err)
	}
	defer rows.Close()

	var fills []*models.Fill
	for rows.Next() {
		var f models.Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Source, &f.Symbol, &f.Side, &f.Quantity, &f.Price, &f.ExecutedAt, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fill: %w", err)
		}
		fills = append(fills, &f)
	}
	return fills, rows.Err()
}
