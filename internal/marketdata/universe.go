package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// ReadUniverseFile reads a universe CSV from path
func ReadUniverseFile(path string) ([]*models.UniverseSymbol, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open universe file: %w", err)
	}
	defer f.Close()
	return ReadUniverse(f)
}

// ReadUniverse parses a CSV with a Symbol column and optional name and sector
// columns (header names are matched case-insensitively). Symbols are
// upper-cased and duplicates dropped.
func ReadUniverse(r io.Reader) ([]*models.UniverseSymbol, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("universe file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read universe header: %w", err)
	}

	symbolCol, nameCol, sectorCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "symbol", "ticker":
			symbolCol = i
		case "name", "security", "company":
			nameCol = i
		case "sector", "gics sector":
			sectorCol = i
		}
	}
	if symbolCol < 0 {
		return nil, errors.New("universe file has no Symbol column")
	}

	seen := make(map[string]struct{})
	var out []*models.UniverseSymbol
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read universe row: %w", err)
		}
		sym := strings.ToUpper(strings.TrimSpace(field(rec, symbolCol)))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, &models.UniverseSymbol{
			Symbol:  sym,
			Name:    strings.TrimSpace(field(rec, nameCol)),
			Sector:  strings.TrimSpace(field(rec, sectorCol)),
			Enabled: true,
		})
	}
	return out, nil
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return rec[i]
}
