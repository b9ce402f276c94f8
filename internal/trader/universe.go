package trader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/trogers1052/rsi-trader/internal/marketdata"
	"github.com/trogers1052/rsi-trader/internal/models"
)

// UniverseStore persists the scan universe
type UniverseStore interface {
	UpsertUniverse(ctx context.Context, symbols []*models.UniverseSymbol) error
	GetUniverseSymbols(ctx context.Context) ([]string, error)
}

// LoadUniverse reads the universe CSV at path and stores it. Returns the symbol count.
func LoadUniverse(ctx context.Context, store UniverseStore, path string, log zerolog.Logger) (int, error) {
	symbols, err := marketdata.ReadUniverseFile(path)
	if err != nil {
		return 0, err
	}
	if len(symbols) == 0 {
		return 0, fmt.Errorf("no symbols found in %s", path)
	}
	if err := store.UpsertUniverse(ctx, symbols); err != nil {
		return 0, err
	}
	log.Info().Int("symbols", len(symbols)).Str("file", path).Msg("loaded universe")
	return len(symbols), nil
}

// EnsureUniverse loads the universe from path only when the store has none
func EnsureUniverse(ctx context.Context, store UniverseStore, path string, log zerolog.Logger) error {
	existing, err := store.GetUniverseSymbols(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	log.Info().Str("file", path).Msg("universe table empty, loading from CSV")
	_, err = LoadUniverse(ctx, store, path, log)
	return err
}
