package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/trogers1052/rsi-trader/internal/models"
)

// InsertPriceBars stores bars in one transaction. Bars that already exist for
// (symbol, trade_date) are left untouched. Returns the number of new rows.
func (db *DB) InsertPriceBars(ctx context.Context, bars []*models.PriceBar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_prices (symbol, trade_date, open, high, low, close, volume, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, trade_date) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	inserted := 0
	for _, b := range bars {
		result, err := stmt.ExecContext(ctx, b.Symbol, b.TradeDate, b.Open, b.High, b.Low, b.Close, b.Volume, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert price bar for %s: %w", b.Symbol, err)
		}
		n, _ := result.RowsAffected()
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// GetPriceBars retrieves bars for a symbol within a date range, oldest first
func (db *DB) GetPriceBars(ctx context.Context, symbol string, startDate, endDate time.Time) ([]*models.PriceBar, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, symbol, trade_date, open, high, low, close, volume, created_at
		FROM daily_prices
		WHERE symbol = $1 AND trade_date >= $2 AND trade_date <= $3
		ORDER BY trade_date ASC
	`, symbol, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get price bars: %w", err)
	}
	defer rows.Close()

	var bars []*models.PriceBar
	for rows.Next() {
		var b models.PriceBar
		if err := rows.Scan(&b.ID, &b.Symbol, &b.TradeDate, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price bar: %w", err)
		}
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

// GetCloses returns closing prices for the given symbols within a date range,
// grouped by symbol and ordered by trade date ascending.
func (db *DB) GetCloses(ctx context.Context, symbols []string, startDate, endDate time.Time) (map[string][]models.ClosePoint, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT symbol, trade_date, close
		FROM daily_prices
		WHERE symbol = ANY($1) AND trade_date >= $2 AND trade_date <= $3
		ORDER BY symbol, trade_date
	`, pq.Array(symbols), startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to get closes: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]models.ClosePoint)
	for rows.Next() {
		var p models.ClosePoint
		if err := rows.Scan(&p.Symbol, &p.TradeDate, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan close: %w", err)
		}
		out[p.Symbol] = append(out[p.Symbol], p)
	}
	return out, rows.Err()
}

// GetPriceDates returns every distinct trade date that has stored bars
func (db *DB) GetPriceDates(ctx context.Context) ([]time.Time, error) {
	return db.queryDates(ctx, `SELECT DISTINCT trade_date FROM daily_prices ORDER BY trade_date`)
}

// GetLatestClose returns the most recent stored close for a symbol
func (db *DB) GetLatestClose(ctx context.Context, symbol string) (*models.PriceBar, error) {
	var b models.PriceBar
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, symbol, trade_date, open, high, low, close, volume, created_at
		FROM daily_prices
		WHERE symbol = $1
		ORDER BY trade_date DESC
		LIMIT 1
	`, symbol).Scan(&b.ID, &b.Symbol, &b.TradeDate, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "price data for "+symbol)
	}
	return &b, nil
}

// DeletePriceBarsOlderThan removes bars traded before date
func (db *DB) DeletePriceBarsOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM daily_prices WHERE trade_date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old price data: %w", err)
	}
	return result.RowsAffected()
}

func (db *DB) queryDates(ctx context.Context, query string, args ...any) ([]time.Time, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
