package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/trogers1052/rsi-trader/internal/database"
	"github.com/trogers1052/rsi-trader/internal/models"
	"github.com/trogers1052/rsi-trader/internal/portfolio"
	"github.com/trogers1052/rsi-trader/internal/signal"
	"github.com/trogers1052/rsi-trader/internal/trader"
)

// Store is the read side of the ledger served over HTTP
type Store interface {
	Ping(ctx context.Context) error
	GetAllPositions(ctx context.Context) ([]*models.Position, error)
	GetPositionBySymbol(ctx context.Context, symbol string) (*models.Position, error)
	GetLatestSnapshots(ctx context.Context) ([]*models.RSISnapshot, error)
	GetSnapshotDates(ctx context.Context) ([]time.Time, error)
	GetFillsBySymbol(ctx context.Context, symbol string, limit int) ([]*models.Fill, error)
	GetTradeLogs(ctx context.Context, limit int) ([]*models.TradeLog, error)
	GetTradeHistoryBySymbol(ctx context.Context, symbol string, limit int) ([]*models.TradeHistory, error)
	GetPriceBars(ctx context.Context, symbol string, startDate, endDate time.Time) ([]*models.PriceBar, error)
	GetLatestClose(ctx context.Context, symbol string) (*models.PriceBar, error)
	GetUniverse(ctx context.Context) ([]*models.UniverseSymbol, error)
	DisableUniverseSymbol(ctx context.Context, symbol string) error
}

const (
	defaultLimit     = 50
	maxLimit         = 500
	defaultPriceDays = 30
	dateLayout       = "2006-01-02"
)

// Reconciler runs a portfolio sync
type Reconciler interface {
	Reconcile(ctx context.Context) (*portfolio.Report, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store           Store
	reconciler      Reconciler
	classifier      *signal.Classifier
	overboughtOrder string
	log             zerolog.Logger
}

// NewHandler creates a new Handler
func NewHandler(store Store, reconciler Reconciler, classifier *signal.Classifier, overboughtOrder string, log zerolog.Logger) *Handler {
	return &Handler{
		store:           store,
		reconciler:      reconciler,
		classifier:      classifier,
		overboughtOrder: overboughtOrder,
		log:             log.With().Str("component", "api").Logger(),
	}
}

// GetPositions handles GET /positions
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.GetAllPositions(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if positions == nil {
		positions = []*models.Position{}
	}
	respondJSON(w, http.StatusOK, positions)
}

// GetPosition handles GET /positions/{symbol}
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	position, err := h.store.GetPositionBySymbol(r.Context(), symbol)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "position not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, position)
}

// GetSummary handles GET /portfolio/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := trader.BuildSummary(r.Context(), h.store)
	if err != nil {
		h.fail(w, err)
		return
	}
	if sum.Rows == nil {
		sum.Rows = []trader.SummaryRow{}
	}
	respondJSON(w, http.StatusOK, sum)
}

// GetLatestSnapshots handles GET /snapshots/latest
func (h *Handler) GetLatestSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.store.GetLatestSnapshots(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if snapshots == nil {
		snapshots = []*models.RSISnapshot{}
	}
	respondJSON(w, http.StatusOK, snapshots)
}

// GetCandidates handles GET /candidates
func (h *Handler) GetCandidates(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.store.GetLatestSnapshots(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	set := trader.Select(trader.ReadingsFromSnapshots(snapshots), h.classifier, h.overboughtOrder)
	if set.Oversold == nil {
		set.Oversold = []trader.Reading{}
	}
	if set.Overbought == nil {
		set.Overbought = []trader.Reading{}
	}
	respondJSON(w, http.StatusOK, set)
}

// GetSnapshotDates handles GET /snapshots/dates
func (h *Handler) GetSnapshotDates(w http.ResponseWriter, r *http.Request) {
	dates, err := h.store.GetSnapshotDates(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.Format(dateLayout))
	}
	respondJSON(w, http.StatusOK, out)
}

// GetFills handles GET /positions/{symbol}/fills
func (h *Handler) GetFills(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	fills, err := h.store.GetFillsBySymbol(r.Context(), strings.ToUpper(mux.Vars(r)["symbol"]), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if fills == nil {
		fills = []*models.Fill{}
	}
	respondJSON(w, http.StatusOK, fills)
}

// GetTrades handles GET /trades
func (h *Handler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	logs, err := h.store.GetTradeLogs(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if logs == nil {
		logs = []*models.TradeLog{}
	}
	respondJSON(w, http.StatusOK, logs)
}

// GetTradeHistory handles GET /trades/{symbol}
func (h *Handler) GetTradeHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	history, err := h.store.GetTradeHistoryBySymbol(r.Context(), strings.ToUpper(mux.Vars(r)["symbol"]), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if history == nil {
		history = []*models.TradeHistory{}
	}
	respondJSON(w, http.StatusOK, history)
}

// GetPrices handles GET /prices/{symbol}?from=YYYY-MM-DD&to=YYYY-MM-DD.
// The window defaults to the last 30 days ending today.
func (h *Handler) GetPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	end := time.Now().UTC().Truncate(24 * time.Hour)
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			http.Error(w, "invalid to date", http.StatusBadRequest)
			return
		}
		end = t
	}
	start := end.AddDate(0, 0, -defaultPriceDays)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			http.Error(w, "invalid from date", http.StatusBadRequest)
			return
		}
		start = t
	}
	if start.After(end) {
		http.Error(w, "from is after to", http.StatusBadRequest)
		return
	}

	bars, err := h.store.GetPriceBars(r.Context(), strings.ToUpper(mux.Vars(r)["symbol"]), start, end)
	if err != nil {
		h.fail(w, err)
		return
	}
	if bars == nil {
		bars = []*models.PriceBar{}
	}
	respondJSON(w, http.StatusOK, bars)
}

// GetLatestPrice handles GET /prices/{symbol}/latest
func (h *Handler) GetLatestPrice(w http.ResponseWriter, r *http.Request) {
	bar, err := h.store.GetLatestClose(r.Context(), strings.ToUpper(mux.Vars(r)["symbol"]))
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "no price data", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bar)
}

// GetUniverse handles GET /universe
func (h *Handler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	universe, err := h.store.GetUniverse(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if universe == nil {
		universe = []*models.UniverseSymbol{}
	}
	respondJSON(w, http.StatusOK, universe)
}

// DisableUniverseSymbol handles DELETE /universe/{symbol}
func (h *Handler) DisableUniverseSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	err := h.store.DisableUniverseSymbol(r.Context(), symbol)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "symbol not in universe", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	h.log.Info().Str("symbol", symbol).Msg("symbol removed from universe")
	w.WriteHeader(http.StatusNoContent)
}

type syncResponse struct {
	Attempted int               `json:"attempted"`
	Applied   int               `json:"applied"`
	Updated   []string          `json:"updated"`
	Inserted  []string          `json:"inserted"`
	Removed   []string          `json:"removed"`
	Failed    map[string]string `json:"failed"`
}

// Sync handles POST /sync
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Reconcile(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("sync failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	resp := syncResponse{
		Attempted: report.Attempted,
		Applied:   report.Applied,
		Updated:   []string{},
		Inserted:  []string{},
		Removed:   append([]string{}, report.Plan.Deletes...),
		Failed:    make(map[string]string, len(report.Failed)),
	}
	for _, u := range report.Plan.Updates {
		resp.Updated = append(resp.Updated, u.Symbol)
	}
	for _, in := range report.Plan.Inserts {
		resp.Inserted = append(resp.Inserted, in.Symbol)
	}
	for symbol, ferr := range report.Failed {
		resp.Failed[symbol] = ferr.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("request failed")
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
