package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/trogers1052/rsi-trader/internal/models"
)

// Client fetches bars and quotes from the Polygon REST API
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   RetryPolicy
	log     zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetryPolicy replaces DefaultRetryPolicy
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// NewClient creates a Polygon client
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		retry:   DefaultRetryPolicy,
		log:     log.With().Str("component", "polygon").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type aggBar struct {
	Ticker    string  `json:"T"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Timestamp int64   `json:"t"`
}

type aggsResponse struct {
	Status       string   `json:"status"`
	ResultsCount int      `json:"resultsCount"`
	Results      []aggBar `json:"results"`
}

type lastTradeResponse struct {
	Status  string `json:"status"`
	Results *struct {
		Price     float64 `json:"p"`
		Timestamp int64   `json:"t"`
	} `json:"results"`
}

// DailyBars fetches the grouped daily bars of every US stock for date.
// Empty answers are retried like failures and end as StatusNoData.
func (c *Client) DailyBars(ctx context.Context, date time.Time) Result[[]*models.PriceBar] {
	day := date.Format("2006-01-02")
	path := "/v2/aggs/grouped/locale/us/market/stocks/" + day

	var resp aggsResponse
	err := c.getWithRetry(ctx, path, url.Values{"adjusted": {"true"}}, func(body []byte) error {
		resp = aggsResponse{}
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode grouped bars: %w", err))
		}
		if len(resp.Results) == 0 {
			return errEmpty
		}
		return nil
	})
	if errors.Is(err, errEmpty) {
		c.log.Warn().Str("date", day).Msg("no grouped bars returned")
		return noData[[]*models.PriceBar]()
	}
	if err != nil {
		c.log.Error().Err(err).Str("date", day).Msg("failed to fetch grouped bars")
		return failed[[]*models.PriceBar](err)
	}

	bars := make([]*models.PriceBar, 0, len(resp.Results))
	for _, b := range resp.Results {
		if b.Ticker == "" {
			continue
		}
		tradeDate := date
		if b.Timestamp > 0 {
			t := time.UnixMilli(b.Timestamp).UTC()
			tradeDate = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		bars = append(bars, &models.PriceBar{
			Symbol:    b.Ticker,
			TradeDate: tradeDate,
			Open:      decimal.NewFromFloat(b.Open),
			High:      decimal.NewFromFloat(b.High),
			Low:       decimal.NewFromFloat(b.Low),
			Close:     decimal.NewFromFloat(b.Close),
			Volume:    int64(b.Volume),
		})
	}
	return ok(bars)
}

// PreviousClose fetches the most recent daily close of symbol
func (c *Client) PreviousClose(ctx context.Context, symbol string) Result[decimal.Decimal] {
	var resp aggsResponse
	err := c.getWithRetry(ctx, "/v2/aggs/ticker/"+url.PathEscape(symbol)+"/prev", url.Values{"adjusted": {"true"}}, func(body []byte) error {
		resp = aggsResponse{}
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode previous close: %w", err))
		}
		if len(resp.Results) == 0 {
			return backoff.Permanent(errEmpty)
		}
		return nil
	})
	if errors.Is(err, errEmpty) {
		return noData[decimal.Decimal]()
	}
	if err != nil {
		c.log.Error().Err(err).Str("symbol", symbol).Msg("failed to fetch previous close")
		return failed[decimal.Decimal](err)
	}
	return ok(decimal.NewFromFloat(resp.Results[0].Close))
}

// LastTrade fetches the latest trade price of symbol
func (c *Client) LastTrade(ctx context.Context, symbol string) Result[decimal.Decimal] {
	var resp lastTradeResponse
	err := c.getWithRetry(ctx, "/v2/last/trade/"+url.PathEscape(symbol), nil, func(body []byte) error {
		resp = lastTradeResponse{}
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode last trade: %w", err))
		}
		if resp.Results == nil || resp.Results.Price <= 0 {
			return backoff.Permanent(errEmpty)
		}
		return nil
	})
	if errors.Is(err, errEmpty) {
		return noData[decimal.Decimal]()
	}
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", symbol).Msg("failed to fetch last trade")
		return failed[decimal.Decimal](err)
	}
	return ok(decimal.NewFromFloat(resp.Results.Price))
}

// LatestPrice returns a live price while the market is open, falling back to
// the previous close. live reports which one was used; ok is false when neither is available.
func (c *Client) LatestPrice(ctx context.Context, symbol string, marketOpen bool) (price decimal.Decimal, live bool, found bool) {
	if marketOpen {
		if r := c.LastTrade(ctx, symbol); r.OK() {
			return r.Data, true, true
		}
	}
	if r := c.PreviousClose(ctx, symbol); r.OK() {
		return r.Data, false, true
	}
	return decimal.Zero, false, false
}

func (c *Client) getWithRetry(ctx context.Context, path string, query url.Values, decode func([]byte) error) error {
	attempt := 0
	op := func() error {
		attempt++
		body, err := c.get(ctx, path, query)
		if err != nil {
			return err
		}
		return decode(body)
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Dur("retry_in", wait).Msg("request failed, retrying")
	}
	return c.retry.retry(ctx, op, notify)
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("GET %s: %s", path, resp.Status)
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(errEmpty)
	default:
		return nil, backoff.Permanent(fmt.Errorf("GET %s: %s", path, resp.Status))
	}
}
