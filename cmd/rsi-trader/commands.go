package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/trogers1052/rsi-trader/internal/cache"
	"github.com/trogers1052/rsi-trader/internal/database"
	"github.com/trogers1052/rsi-trader/internal/export"
	"github.com/trogers1052/rsi-trader/internal/marketdata"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
	"github.com/trogers1052/rsi-trader/internal/session"
	"github.com/trogers1052/rsi-trader/internal/signal"
	"github.com/trogers1052/rsi-trader/internal/trader"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			a.log.Info().Msg("database schema is up to date")
			return nil
		},
	}
}

func (a *app) universeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "universe",
		Short: "Manage the scan universe",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "load [csv]",
		Short: "Load universe symbols from a CSV with a Symbol column",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.strategy.Universe.Source
			if len(args) > 0 {
				path = args[0]
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := trader.LoadUniverse(cmd.Context(), db, path, a.log)
			if err != nil {
				return err
			}
			printf("Loaded %d symbols from %s\n", n, path)
			return nil
		},
	})
	return cmd
}

func (a *app) fetchCmd() *cobra.Command {
	var backfill bool
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download daily bars for the last session, or backfill missing sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			fetcher := marketdata.NewFetcher(a.polygon(), db, a.calendar, a.cfg.Polygon.RateLimit, a.log)
			report, err := fetcher.Fetch(cmd.Context(), a.today(), backfill)
			if err != nil {
				return err
			}
			printf("Fetched %d of %d dates (%d already stored, %d without data, %d failed), %d bars inserted\n",
				len(report.Fetched), len(report.Requested), report.Skipped, len(report.NoData), len(report.Failed), report.Inserted)
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d dates failed, rerun fetch to retry them", len(report.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&backfill, "backfill", false, fmt.Sprintf("fetch every missing session of the past %d days", marketdata.BackfillDays))
	return cmd
}

func (a *app) scanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Compute RSI for the universe, store snapshots and export CSV tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := trader.EnsureUniverse(ctx, db, a.strategy.Universe.Source, a.log); err != nil {
				return err
			}

			calc := a.strategy.Calculator
			scanner := trader.NewScanner(db, calc.RSIPeriod, calc.LookbackBufferDays, a.cfg.ExportDir, a.log)
			result, err := scanner.Scan(ctx, a.today())
			if err != nil {
				return err
			}
			if len(result.Rows) == 0 {
				printf("No RSI values calculated (%d symbols lacked history). Run fetch --backfill first.\n", result.Insufficient)
				return nil
			}

			n := min(trader.TableSize, len(result.Rows))
			printRows(fmt.Sprintf("Lowest %d RSI", n), result.Rows[:n])
			highest := append([]export.RSIRow(nil), result.Rows[len(result.Rows)-n:]...)
			sort.SliceStable(highest, func(i, j int) bool { return highest[i].RSI > highest[j].RSI })
			printRows(fmt.Sprintf("Highest %d RSI", n), highest)

			printf("\n")
			export.Histogram(os.Stdout, fmt.Sprintf("RSI distribution %s", result.Date.Format("2006-01-02")), result.RSIValues(), 20, 30, 70)
			if result.Files.Snapshot != "" {
				printf("\nExported %s\n", result.Files.Snapshot)
			}
			return nil
		},
	}
}

func printRows(title string, rows []export.RSIRow) {
	printf("\n%s\n", title)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Symbol\tRSI\tClose")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\n", r.Symbol, r.RSI, r.Close)
	}
	tw.Flush()
}

// sessionDeps wires the shared dependencies of the trade and analyze sessions
func (a *app) sessionDeps(db *database.DB, conn *brokerConn, term *session.Terminal) trader.Deps {
	return trader.Deps{
		Classifier: signal.NewClassifier(a.strategy.Thresholds()),
		Sizer:      a.strategy.Sizer(),
		Quotes:     cache.NewCachedQuoter(conn.cache, a.polygon(), a.log),
		Account:    conn,
		Executor:   trader.NewOrderExecutor(conn, db, portfolio.NewUpdater(db, a.log), a.log),
		Decider:    term,
		Out:        term.Stdout(),
		Log:        a.log,
	}
}

func (a *app) tradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trade",
		Short: "Review today's extreme RSI candidates and approve entry orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			conn, err := a.openBroker(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			term, err := session.NewTerminal()
			if err != nil {
				return err
			}
			defer term.Close()

			loader := trader.NewLoader(db, a.strategy.Universe.SourceMode, a.cfg.ExportDir, a.log)
			report, err := trader.NewEntrySession(a.sessionDeps(db, conn, term), loader, a.strategy.Entry.OverboughtOrder).Run(ctx)
			if err != nil {
				return err
			}
			a.log.Info().
				Str("source", report.Source).
				Int("oversold", report.Oversold).
				Int("overbought", report.Overbought).
				Int("buys", report.Buys.Executed).
				Int("shorts", report.Shorts.Executed).
				Int("failed", report.Buys.Failed+report.Shorts.Failed).
				Bool("cancelled", report.Cancelled).
				Msg("trade session finished")
			return nil
		},
	}
}

func (a *app) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Review held positions for exits and average-down opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			conn, err := a.openBroker(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()
			term, err := session.NewTerminal()
			if err != nil {
				return err
			}
			defer term.Close()

			report, err := trader.NewExitSession(a.sessionDeps(db, conn, term), db).Run(ctx)
			if err != nil {
				return err
			}
			a.log.Info().
				Int("holdings", report.Holdings).
				Int("exits", report.Exits).
				Int("average_downs", report.AverageDowns).
				Int("executed", report.Actions.Executed).
				Int("failed", report.Actions.Failed).
				Msg("analyze session finished")
			return nil
		},
	}
}

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local ledger with the broker and print the portfolio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()
			conn, err := a.openBroker(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			syncer := trader.NewSyncer(portfolio.NewReconciler(db, conn, a.log), db, os.Stdout)
			report, err := syncer.Run(ctx)
			if err != nil {
				return err
			}
			if len(report.Failed) > 0 {
				return fmt.Errorf("%d of %d sync changes failed", len(report.Failed), report.Attempted)
			}
			return nil
		},
	}
}

func (a *app) cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete trade logs, prices and snapshots older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				days = a.strategy.Retention.DaysToKeep
			}
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer db.Close()

			result := db.CleanupOldData(cmd.Context(), days, a.today(), a.log)
			tables := make([]string, 0, len(result))
			for table := range result {
				tables = append(tables, table)
			}
			sort.Strings(tables)
			for _, table := range tables {
				printf("%-16s %d rows deleted\n", table, result[table])
			}
			printf("Removed %d rows older than %d days\n", result.Total(), days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "days to keep (defaults to retention.days_to_keep)")
	return cmd
}
