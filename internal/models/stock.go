package models

import "time"

// UniverseSymbol is a ticker eligible for RSI scanning
type UniverseSymbol struct {
	Symbol  string    `json:"symbol"`
	Name    string    `json:"name,omitempty"`
	Sector  string    `json:"sector,omitempty"`
	Enabled bool      `json:"enabled"`
	AddedAt time.Time `json:"added_at"`
}
