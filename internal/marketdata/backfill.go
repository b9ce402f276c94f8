package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// BackfillDays is how far back a backfill reaches
const BackfillDays = 60

// BarSource returns the grouped daily bars of one date
type BarSource interface {
	DailyBars(ctx context.Context, date time.Time) Result[[]*models.PriceBar]
}

// BarStore persists daily bars
type BarStore interface {
	InsertPriceBars(ctx context.Context, bars []*models.PriceBar) (int, error)
	GetPriceDates(ctx context.Context) ([]time.Time, error)
}

// FetchReport summarises a fetch run
type FetchReport struct {
	Requested []time.Time
	Skipped   int
	Fetched   []time.Time
	NoData    []time.Time
	Failed    []time.Time
	Inserted  int
}

// Fetcher downloads missing daily bars into the store
type Fetcher struct {
	source    BarSource
	store     BarStore
	calendar  *Calendar
	rateLimit time.Duration
	log       zerolog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a Fetcher that waits rateLimit between backfill requests
func NewFetcher(source BarSource, store BarStore, calendar *Calendar, rateLimit time.Duration, log zerolog.Logger) *Fetcher {
	return &Fetcher{
		source:    source,
		store:     store,
		calendar:  calendar,
		rateLimit: rateLimit,
		log:       log.With().Str("component", "fetcher").Logger(),
		sleep:     sleepCtx,
	}
}

// Fetch stores bars for the latest session before today, or with backfill
// for every session of the past BackfillDays. Dates already stored are skipped.
// A date that fails or has no data is logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, today time.Time, backfill bool) (*FetchReport, error) {
	existing, err := f.store.GetPriceDates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored dates: %w", err)
	}
	have := make(map[time.Time]struct{}, len(existing))
	for _, d := range existing {
		have[dateOf(d)] = struct{}{}
	}

	var candidates []time.Time
	if backfill {
		candidates = f.calendar.Sessions(today.AddDate(0, 0, -BackfillDays), today.AddDate(0, 0, -1))
	} else if last, ok := f.lastSessionBefore(today); ok {
		candidates = []time.Time{last}
	}

	report := &FetchReport{}
	for _, d := range candidates {
		if _, ok := have[d]; ok {
			report.Skipped++
			continue
		}
		report.Requested = append(report.Requested, d)
	}

	if len(report.Requested) == 0 {
		f.log.Info().Int("skipped", report.Skipped).Msg("all data already exists")
		return report, nil
	}
	f.log.Info().Int("dates", len(report.Requested)).Bool("backfill", backfill).Msg("fetching trading days")

	for i, d := range report.Requested {
		if i > 0 && backfill {
			if err := f.sleep(ctx, f.rateLimit); err != nil {
				return report, err
			}
		}
		f.fetchOne(ctx, d, report)
	}

	f.log.Info().
		Int("fetched", len(report.Fetched)).
		Int("no_data", len(report.NoData)).
		Int("failed", len(report.Failed)).
		Int("inserted", report.Inserted).
		Msg("fetch complete")
	return report, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, d time.Time, report *FetchReport) {
	day := d.Format("2006-01-02")
	res := f.source.DailyBars(ctx, d)
	switch res.Status {
	case StatusOK:
		n, err := f.store.InsertPriceBars(ctx, res.Data)
		if err != nil {
			f.log.Error().Err(err).Str("date", day).Msg("failed to store bars")
			report.Failed = append(report.Failed, d)
			return
		}
		report.Inserted += n
		report.Fetched = append(report.Fetched, d)
		f.log.Info().Str("date", day).Int("inserted", n).Int("received", len(res.Data)).Msg("stored daily bars")
	case StatusNoData:
		report.NoData = append(report.NoData, d)
	default:
		f.log.Error().Err(res.Err).Str("date", day).Msg("skipping date after retries")
		report.Failed = append(report.Failed, d)
	}
}

func (f *Fetcher) lastSessionBefore(today time.Time) (time.Time, bool) {
	d := dateOf(today).AddDate(0, 0, -1)
	for i := 0; i < 10; i++ {
		if f.calendar.IsSession(d) {
			return d, true
		}
		d = d.AddDate(0, 0, -1)
	}
	return time.Time{}, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
