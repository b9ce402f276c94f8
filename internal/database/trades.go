package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// CreateTradeLog appends an order submission attempt to trade_log
func (db *DB) CreateTradeLog(ctx context.Context, t *models.TradeLog) error {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now()
	}
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO trade_log (order_id, symbol, side, qty, price, status, notes, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, nullString(t.OrderID), t.Symbol, t.Side, t.Quantity, t.Price, t.Status, nullString(t.Notes), t.Timestamp).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create trade log for %s: %w", t.Symbol, err)
	}
	return nil
}

// GetTradeLogs retrieves the most recent trade log entries, newest first
func (db *DB) GetTradeLogs(ctx context.Context, limit int) ([]*models.TradeLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, qty, price, status, notes, timestamp
		FROM trade_log
		ORDER BY timestamp DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.TradeLog
	for rows.Next() {
		var t models.TradeLog
		var orderID, notes sql.NullString
		if err := rows.Scan(&t.ID, &orderID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.Status, &notes, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan trade log: %w", err)
		}
		t.OrderID = orderID.String
		t.Notes = notes.String
		logs = append(logs, &t)
	}
	return logs, rows.Err()
}

// CreateTradeHistory appends a submitted trade to trade_history
func (db *DB) CreateTradeHistory(ctx context.Context, t *models.TradeHistory) error {
	now := time.Now()
	if t.TradeDate.IsZero() {
		t.TradeDate = now
	}
	if t.OrderStatus == "" {
		t.OrderStatus = models.OrderStatusSubmitted
	}
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO trade_history (order_id, symbol, side, qty, price, order_status, trade_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, nullString(t.OrderID), t.Symbol, t.Side, t.Quantity, t.Price, t.OrderStatus, t.TradeDate, now).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("failed to create trade history for %s: %w", t.Symbol, err)
	}
	t.CreatedAt = now
	return nil
}

// GetTradeHistoryBySymbol retrieves trades for a symbol, newest first
func (db *DB) GetTradeHistoryBySymbol(ctx context.Context, symbol string, limit int) ([]*models.TradeHistory, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, order_id, symbol, side, qty, price, order_status, trade_date, created_at
		FROM trade_history
		WHERE symbol = $1
		ORDER BY trade_date DESC, id DESC
		LIMIT $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get trade history: %w", err)
	}
	defer rows.Close()

	var trades []*models.TradeHistory
	for rows.Next() {
		var t models.TradeHistory
		var orderID sql.NullString
		if err := rows.Scan(&t.ID, &orderID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.OrderStatus, &t.TradeDate, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade history: %w", err)
		}
		t.OrderID = orderID.String
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// DeleteTradeLogsOlderThan removes trade log rows written before date
func (db *DB) DeleteTradeLogsOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM trade_log WHERE timestamp < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old trade logs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteTradeHistoryOlderThan removes trade history rows traded before date
func (db *DB) DeleteTradeHistoryOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM trade_history WHERE trade_date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old trade history: %w", err)
	}
	return result.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
