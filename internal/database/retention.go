package database

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// CleanupResult holds the rows removed per table
type CleanupResult map[string]int64

// Total returns the rows removed across all tables
func (r CleanupResult) Total() int64 {
	var n int64
	for _, v := range r {
		n += v
	}
	return n
}

// CleanupOldData prunes trade_log, trade_history, daily_prices and snapshots
// older than daysToKeep. A failing table is logged and counted as zero.
func (db *DB) CleanupOldData(ctx context.Context, daysToKeep int, now time.Time, log zerolog.Logger) CleanupResult {
	cutoff := now.AddDate(0, 0, -daysToKeep)

	steps := []struct {
		table string
		fn    func(context.Context, time.Time) (int64, error)
	}{
		{"trade_log", db.DeleteTradeLogsOlderThan},
		{"trade_history", db.DeleteTradeHistoryOlderThan},
		{"daily_prices", db.DeletePriceBarsOlderThan},
		{"snapshots", db.DeleteSnapshotsOlderThan},
	}

	result := make(CleanupResult, len(steps))
	for _, s := range steps {
		n, err := s.fn(ctx, cutoff)
		if err != nil {
			log.Error().Err(err).Str("table", s.table).Msg("cleanup failed")
			result[s.table] = 0
			continue
		}
		log.Info().Str("table", s.table).Int64("rows", n).Msg("cleaned up old records")
		result[s.table] = n
	}
	return result
}
