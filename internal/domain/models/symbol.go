package models

import "time"

// Symbol is an underlying tracked by ingestion.
type Symbol struct {
	Symbol          string
	Active          bool
	FirstOptionDate time.Time
	LastOptionDate  time.Time
}

// DailySnapshot records ingestion progress for one (symbol, date).
type DailySnapshot struct {
	Symbol    string
	TradeDate time.Time
	Completed bool
	// Skipped is set when at least one leg group had no listings.
	Skipped   bool
	UpdatedAt time.Time
}
