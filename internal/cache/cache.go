package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// ErrNoSnapshot is returned when no broker account snapshot has been cached yet
var ErrNoSnapshot = errors.New("no account snapshot cached")

// Store keeps broker state and quotes in Redis
type Store struct {
	rdb        *redis.Client
	prefix     string
	priceTTL   time.Duration
	keyAccount string
}

// CachedPrice is a quote held for a short time
type CachedPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Live   bool            `json:"live"`
	At     time.Time       `json:"at"`
}

// NewClient opens a Redis client and pings it
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// New creates a Store. Keys are namespaced under prefix.
func New(rdb *redis.Client, prefix string, priceTTL time.Duration) *Store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &Store{
		rdb:        rdb,
		prefix:     prefix,
		priceTTL:   priceTTL,
		keyAccount: prefix + ":account",
	}
}

// SaveAccount replaces the cached account snapshot
func (s *Store) SaveAccount(ctx context.Context, snap *models.AccountSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode account snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.keyAccount, b, 0).Err(); err != nil {
		return fmt.Errorf("failed to save account snapshot: %w", err)
	}
	return nil
}

// Account returns the cached account snapshot
func (s *Store) Account(ctx context.Context) (*models.AccountSnapshot, error) {
	b, err := s.rdb.Get(ctx, s.keyAccount).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account snapshot: %w", err)
	}
	var snap models.AccountSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode account snapshot: %w", err)
	}
	return &snap, nil
}

// SetPrice caches a quote for the configured TTL
func (s *Store) SetPrice(ctx context.Context, p CachedPrice) error {
	if !p.Price.IsPositive() {
		return nil
	}
	b, _ := json.Marshal(p)
	if err := s.rdb.Set(ctx, s.priceKey(p.Symbol), b, s.priceTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache price for %s: %w", p.Symbol, err)
	}
	return nil
}

// GetPrice returns a cached quote; found is false after expiry
func (s *Store) GetPrice(ctx context.Context, symbol string) (p CachedPrice, found bool, err error) {
	b, err := s.rdb.Get(ctx, s.priceKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return CachedPrice{}, false, nil
	}
	if err != nil {
		return CachedPrice{}, false, fmt.Errorf("failed to read cached price for %s: %w", symbol, err)
	}
	if err := json.Unmarshal(b, &p); err != nil {
		return CachedPrice{}, false, fmt.Errorf("failed to decode cached price for %s: %w", symbol, err)
	}
	return p, true, nil
}

func (s *Store) priceKey(symbol string) string {
	return s.prefix + ":price:" + strings.ToUpper(symbol)
}
