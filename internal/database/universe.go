package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// UpsertUniverse stores the scan universe in one transaction. Existing
// symbols get their name and sector refreshed and are re-enabled.
func (db *DB) UpsertUniverse(ctx context.Context, symbols []*models.UniverseSymbol) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO universe (symbol, name, sector, enabled, added_at)
			VALUES ($1, $2, $3, TRUE, $4)
			ON CONFLICT (symbol) DO UPDATE SET
				name = EXCLUDED.name,
				sector = EXCLUDED.sector,
				enabled = TRUE
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for _, s := range symbols {
			if _, err := stmt.ExecContext(ctx, s.Symbol, nullString(s.Name), nullString(s.Sector), now); err != nil {
				return fmt.Errorf("failed to upsert universe symbol %s: %w", s.Symbol, err)
			}
			s.Enabled = true
			s.AddedAt = now
		}
		return nil
	})
}

// GetUniverse retrieves the enabled universe ordered by symbol
func (db *DB) GetUniverse(ctx context.Context) ([]*models.UniverseSymbol, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT symbol, name, sector, enabled, added_at
		FROM universe
		WHERE enabled = TRUE
		ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get universe: %w", err)
	}
	defer rows.Close()

	var out []*models.UniverseSymbol
	for rows.Next() {
		var s models.UniverseSymbol
		var name, sector sql.NullString
		if err := rows.Scan(&s.Symbol, &name, &sector, &s.Enabled, &s.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan universe symbol: %w", err)
		}
		s.Name = name.String
		s.Sector = sector.String
		out = append(out, &s)
	}
	return out, rows.Err()
}

// GetUniverseSymbols returns just the enabled tickers
func (db *DB) GetUniverseSymbols(ctx context.Context) ([]string, error) {
	universe, err := db.GetUniverse(ctx)
	if err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(universe))
	for _, s := range universe {
		symbols = append(symbols, s.Symbol)
	}
	return symbols, nil
}

// DisableUniverseSymbol removes a symbol from future scans
func (db *DB) DisableUniverseSymbol(ctx context.Context, symbol string) error {
	result, err := db.conn.ExecContext(ctx, `UPDATE universe SET enabled = FALSE WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("failed to disable universe symbol: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("universe symbol %s: %w", symbol, ErrNotFound)
	}
	return nil
}
