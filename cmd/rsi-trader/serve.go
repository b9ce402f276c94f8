package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/trogers1052/rsi-trader/internal/api"
	"github.com/trogers1052/rsi-trader/internal/kafka"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
	"github.com/trogers1052/rsi-trader/internal/signal"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the broker event consumers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

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

			k := a.cfg.Kafka
			positions := kafka.NewPositionsConsumer(k.Brokers, k.PositionsTopic, k.GroupID, conn.cache, a.log)
			trades := kafka.NewTradeConsumer(k.Brokers, k.TradesTopic, k.GroupID, portfolio.NewUpdater(db, a.log), a.log)

			handler := api.NewHandler(
				db,
				portfolio.NewReconciler(db, conn, a.log),
				signal.NewClassifier(a.strategy.Thresholds()),
				a.strategy.Entry.OverboughtOrder,
				a.log,
			)
			srv := &http.Server{
				Addr:              a.cfg.Server.Addr(),
				Handler:           api.SetupRoutes(handler),
				ReadHeaderTimeout: 10 * time.Second,
			}

			var wg sync.WaitGroup
			errc := make(chan error, 3)
			run := func(name string, fn func(context.Context) error) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
						a.log.Error().Err(err).Str("worker", name).Msg("worker stopped")
						errc <- err
					}
				}()
			}
			run("positions-consumer", positions.Start)
			run("trade-consumer", trades.Start)

			wg.Add(1)
			go func() {
				defer wg.Done()
				a.log.Info().Str("addr", srv.Addr).Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()

			var runErr error
			select {
			case <-ctx.Done():
				a.log.Info().Msg("shutting down")
			case runErr = <-errc:
				a.log.Error().Err(runErr).Msg("shutting down after failure")
			}
			cancel()

			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error().Err(err).Msg("http server shutdown failed")
			}
			wg.Wait()
			a.log.Info().Msg("stopped")
			return runErr
		},
	}
}
