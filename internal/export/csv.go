// Package export writes and reads the RSI scan tables and renders the text histogram.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RSIRow is one line of a scan table
type RSIRow struct {
	Symbol string
	RSI    float64
	Close  float64
}

var header = []string{"Symbol", "RSI", "Close"}

// Files names the three tables written for one scan date
type Files struct {
	Lowest   string
	Highest  string
	Snapshot string
}

const (
	suffixLowest   = "-sp500_rsi_lowest.csv"
	suffixHighest  = "-sp500_rsi_highest.csv"
	suffixSnapshot = "-sp500_rsi_snapshot.csv"
)

// FilesFor returns the table paths in dir for date
func FilesFor(dir string, date time.Time) Files {
	prefix := filepath.Join(dir, date.Format("2006-01-02"))
	return Files{
		Lowest:   prefix + suffixLowest,
		Highest:  prefix + suffixHighest,
		Snapshot: prefix + suffixSnapshot,
	}
}

// LatestFiles finds the most recent scan date in dir that has both the lowest and
// highest tables. found is false when there is none.
func LatestFiles(dir string) (files Files, found bool, err error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+suffixLowest))
	if err != nil {
		return Files{}, false, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))

	for _, m := range matches {
		day := strings.TrimSuffix(filepath.Base(m), suffixLowest)
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		f := FilesFor(dir, date)
		if _, err := os.Stat(f.Highest); err == nil {
			return f, true, nil
		}
	}
	return Files{}, false, nil
}

// WriteScan writes the lowest-n, highest-n and full tables. rows must be sorted by RSI ascending.
func WriteScan(dir string, date time.Time, rows []RSIRow, n int) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("failed to create export dir: %w", err)
	}
	files := FilesFor(dir, date)

	lowest := rows[:min(n, len(rows))]
	highest := rows[max(len(rows)-n, 0):]

	for path, table := range map[string][]RSIRow{
		files.Lowest:   lowest,
		files.Highest:  highest,
		files.Snapshot: rows,
	} {
		if err := WriteFile(path, table); err != nil {
			return Files{}, err
		}
	}
	return files, nil
}

// WriteFile writes rows to path as CSV
func WriteFile(path string, rows []RSIRow) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Write(f, rows); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Write writes rows as CSV with a Symbol,RSI,Close header
func Write(w io.Writer, rows []RSIRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Symbol,
			strconv.FormatFloat(r.RSI, 'f', 4, 64),
			strconv.FormatFloat(r.Close, 'f', -1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadFile reads a scan table from path
func ReadFile(path string) ([]RSIRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rows, nil
}

// Read parses a scan table. Rows with an empty or invalid RSI are skipped.
func Read(r io.Reader) ([]RSIRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	col := map[string]int{}
	for i, h := range head {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	symIdx, okSym := col["symbol"]
	rsiIdx, okRSI := col["rsi"]
	closeIdx, okClose := col["close"]
	if !okSym || !okRSI {
		return nil, errors.New("missing Symbol or RSI column")
	}

	var rows []RSIRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if symIdx >= len(rec) || rsiIdx >= len(rec) {
			continue
		}
		rsi, err := strconv.ParseFloat(strings.TrimSpace(rec[rsiIdx]), 64)
		if err != nil {
			continue
		}
		row := RSIRow{Symbol: strings.ToUpper(strings.TrimSpace(rec[symIdx])), RSI: rsi}
		if okClose && closeIdx < len(rec) {
			row.Close, _ = strconv.ParseFloat(strings.TrimSpace(rec[closeIdx]), 64)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
