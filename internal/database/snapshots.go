package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/rsi-trader/internal/models"
)

const upsertSnapshotSQL = `
	INSERT INTO snapshots (snapshot_date, symbol, rsi, price, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (symbol, snapshot_date) DO UPDATE SET
		rsi = EXCLUDED.rsi,
		price = EXCLUDED.price
	RETURNING id
`

// UpsertSnapshot stores the RSI snapshot for (symbol, snapshot_date), replacing any earlier value
func (db *DB) UpsertSnapshot(ctx context.Context, s *models.RSISnapshot) error {
	now := time.Now()
	err := db.conn.QueryRowContext(ctx, upsertSnapshotSQL, s.SnapshotDate, s.Symbol, s.RSI, s.Price, now).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot for %s: %w", s.Symbol, err)
	}
	s.CreatedAt = now
	return nil
}

// UpsertSnapshots stores each snapshot independently. A failing row does not
// stop the rest; the returned count is the number stored and the error joins
// every per-row failure.
func (db *DB) UpsertSnapshots(ctx context.Context, snapshots []*models.RSISnapshot) (int, error) {
	var errs []error
	stored := 0
	for _, s := range snapshots {
		if err := db.UpsertSnapshot(ctx, s); err != nil {
			errs = append(errs, err)
			continue
		}
		stored++
	}
	return stored, errors.Join(errs...)
}

// GetLatestSnapshotDate returns the most recent snapshot date, or ErrNotFound when there are none
func (db *DB) GetLatestSnapshotDate(ctx context.Context) (time.Time, error) {
	var latest *time.Time
	if err := db.conn.QueryRowContext(ctx, `SELECT MAX(snapshot_date) FROM snapshots`).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to get latest snapshot date: %w", err)
	}
	if latest == nil {
		return time.Time{}, fmt.Errorf("snapshots: %w", ErrNotFound)
	}
	return *latest, nil
}

// GetSnapshotsByDate retrieves all snapshots for a date ordered by symbol
func (db *DB) GetSnapshotsByDate(ctx context.Context, date time.Time) ([]*models.RSISnapshot, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, snapshot_date, symbol, rsi, price, created_at
		FROM snapshots
		WHERE snapshot_date = $1
		ORDER BY symbol
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.RSISnapshot
	for rows.Next() {
		var s models.RSISnapshot
		if err := rows.Scan(&s.ID, &s.SnapshotDate, &s.Symbol, &s.RSI, &s.Price, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, &s)
	}
	return snapshots, rows.Err()
}

// GetLatestSnapshots retrieves the snapshots of the most recent snapshot date.
// An empty table yields no rows and no error.
func (db *DB) GetLatestSnapshots(ctx context.Context) ([]*models.RSISnapshot, error) {
	latest, err := db.GetLatestSnapshotDate(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.GetSnapshotsByDate(ctx, latest)
}

// GetSnapshotDates returns every distinct snapshot date
func (db *DB) GetSnapshotDates(ctx context.Context) ([]time.Time, error) {
	return db.queryDates(ctx, `SELECT DISTINCT snapshot_date FROM snapshots ORDER BY snapshot_date`)
}

// DeleteSnapshotsOlderThan removes snapshots dated before date
func (db *DB) DeleteSnapshotsOlderThan(ctx context.Context, date time.Time) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM snapshots WHERE snapshot_date < $1`, date)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old snapshots: %w", err)
	}
	return result.RowsAffected()
}
