package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/trogers1052/rsi-trader/internal/broker"
	"github.com/trogers1052/rsi-trader/internal/cache"
	"github.com/trogers1052/rsi-trader/internal/config"
	"github.com/trogers1052/rsi-trader/internal/database"
	"github.com/trogers1052/rsi-trader/internal/kafka"
	"github.com/trogers1052/rsi-trader/internal/logger"
	"github.com/trogers1052/rsi-trader/internal/marketdata"
)

// app holds configuration shared by every command and opens infrastructure on demand
type app struct {
	cfg          *config.Config
	strategy     *config.Strategy
	strategyPath string
	log          zerolog.Logger
	calendar     *marketdata.Calendar
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:   "rsi-trader",
		Short: "RSI scanner and semi-automatic trading assistant",
		Long: `rsi-trader fetches daily bars, computes RSI for the S&P 500 universe and
walks you through approving entry and exit trades against your broker account.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.strategyPath, "strategy", "", "path to strategy YAML (overrides STRATEGY_CONFIG)")

	root.AddCommand(
		a.migrateCmd(),
		a.universeCmd(),
		a.fetchCmd(),
		a.scanCmd(),
		a.tradeCmd(),
		a.analyzeCmd(),
		a.syncCmd(),
		a.cleanupCmd(),
		a.serveCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func (a *app) init() error {
	a.cfg = config.Load()
	a.log = logger.Setup(a.cfg.LogLevel)

	path := a.cfg.StrategyPath
	if a.strategyPath != "" {
		path = a.strategyPath
	}
	strategy, err := config.LoadStrategy(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.log.Warn().Str("path", path).Msg("strategy config not found, using defaults")
		strategy = config.DefaultStrategy()
	} else if err != nil {
		return err
	}
	a.strategy = strategy

	a.calendar, err = marketdata.LoadCalendar(a.cfg.MarketTimezone)
	if err != nil {
		return err
	}
	return nil
}

// openDB connects to PostgreSQL and applies pending migrations
func (a *app) openDB() (*database.DB, error) {
	db, err := database.New(a.cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (a *app) openCache(ctx context.Context) (*cache.Store, func(), error) {
	rdb, err := cache.NewClient(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return cache.New(rdb, a.cfg.Redis.Prefix, a.cfg.Redis.PriceTTL), func() { rdb.Close() }, nil
}

func (a *app) polygon() *marketdata.Client {
	if a.cfg.Polygon.APIKey == "" {
		a.log.Warn().Msg("POLYGON_KEY is not set, market data requests will be rejected")
	}
	return marketdata.NewClient(a.cfg.Polygon.BaseURL, a.cfg.Polygon.APIKey, a.cfg.Polygon.Timeout, a.log)
}

// brokerConn is the broker facade plus what must be closed with it
type brokerConn struct {
	*broker.Broker
	cache    *cache.Store
	producer *kafka.Producer
	closeRDB func()
}

func (b *brokerConn) Close() {
	if err := b.producer.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close producer")
	}
	b.closeRDB()
}

func (a *app) openBroker(ctx context.Context) (*brokerConn, error) {
	store, closeRDB, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	producer := kafka.NewProducer(a.cfg.Kafka.Brokers, a.cfg.Kafka.OrdersTopic)
	return &brokerConn{
		Broker:   broker.New(store, producer, a.calendar, a.cfg.AccountMaxAge, a.log),
		cache:    store,
		producer: producer,
		closeRDB: closeRDB,
	}, nil
}

// today is the current market date as a UTC midnight, matching DATE columns
func (a *app) today() time.Time {
	now := time.Now().In(a.calendar.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func printf(format string, args ...any) {
	fmt.Fprintf(os.Stdout, format, args...)
}
