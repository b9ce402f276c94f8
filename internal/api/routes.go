package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/positions", handler.GetPositions).Methods("GET")
	api.HandleFunc("/positions/{symbol}", handler.GetPosition).Methods("GET")
	api.HandleFunc("/positions/{symbol}/fills", handler.GetFills).Methods("GET")
	api.HandleFunc("/portfolio/summary", handler.GetSummary).Methods("GET")
	api.HandleFunc("/snapshots/latest", handler.GetLatestSnapshots).Methods("GET")
	api.HandleFunc("/snapshots/dates", handler.GetSnapshotDates).Methods("GET")
	api.HandleFunc("/candidates", handler.GetCandidates).Methods("GET")
	api.HandleFunc("/trades", handler.GetTrades).Methods("GET")
	api.HandleFunc("/trades/{symbol}", handler.GetTradeHistory).Methods("GET")
	api.HandleFunc("/prices/{symbol}", handler.GetPrices).Methods("GET")
	api.HandleFunc("/prices/{symbol}/latest", handler.GetLatestPrice).Methods("GET")
	api.HandleFunc("/universe", handler.GetUniverse).Methods("GET")
	api.HandleFunc("/universe/{symbol}", handler.DisableUniverseSymbol).Methods("DELETE")
	api.HandleFunc("/sync", handler.Sync).Methods("POST")

	return r
}
