package repository

import (
	"context"
	"time"

	"VolPull/internal/domain/models"
)

// QuoteRepository stores normalized option quotes.
type QuoteRepository interface {
	// FindQuotes returns quotes of the given buckets and types for one day.
	FindQuotes(ctx context.Context, symbol string, tradeDate time.Time, buckets []models.TermBucket, types []models.OptionType) ([]models.OptionQuote, error)
	// ExistsLeg reports whether any quote of type cp with DTE inside w is stored.
	ExistsLeg(ctx context.Context, symbol string, tradeDate time.Time, cp models.OptionType, w models.DTEWindow) (bool, error)
	// InsertQuotes is idempotent on (symbol, trade date, option id).
	InsertQuotes(ctx context.Context, quotes []models.OptionQuote) error
	// TradeDates lists the distinct dates holding quotes for symbol.
	TradeDates(ctx context.Context, symbol string) ([]time.Time, error)
}

// ProgressRepository tracks ingestion cursors and symbol metadata.
type ProgressRepository interface {
	LastCompletedDate(ctx context.Context, symbol string) (time.Time, bool, error)
	MarkDay(ctx context.Context, snap models.DailySnapshot) error
	GetSymbol(ctx context.Context, symbol string) (models.Symbol, bool, error)
	SaveSymbol(ctx context.Context, s models.Symbol) error
}

// RateRepository stores Treasury constant-maturity observations.
type RateRepository interface {
	// FindCurve returns every tenor stored for exactly date.
	FindCurve(ctx context.Context, date time.Time) (models.RateCurve, error)
	// UpsertRates writes rates; when overwrite is false existing rows are kept.
	// Returns the number of rows written.
	UpsertRates(ctx context.Context, rates []models.RiskFreeRate, overwrite bool) (int, error)
}

// IndexValueStore persists computed index values keyed on
// (symbol, trade date, index type).
type IndexValueStore interface {
	Upsert(ctx context.Context, v models.IndexValue) error
	Dates(ctx context.Context, symbol string, indexType models.IndexType) ([]time.Time, error)
	Find(ctx context.Context, symbol string, indexType models.IndexType, from, to time.Time, limit int) ([]models.IndexValue, error)
	// Delete removes stored values; an empty symbol or index type matches all.
	Delete(ctx context.Context, symbol string, indexType models.IndexType) error
}

// Store bundles the persistence concerns of one backend.
type Store interface {
	QuoteRepository
	ProgressRepository
	RateRepository
	IndexValueStore
	Init(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// OptionProvider fetches raw option chains for one day.
type OptionProvider interface {
	FetchChain(ctx context.Context, req models.ChainRequest) ([]models.RawQuote, error)
}

// RateSource fetches Treasury yields for a date range.
type RateSource interface {
	FetchRates(ctx context.Context, from, to time.Time) ([]models.RiskFreeRate, error)
}

// Calendar answers exchange trading-day questions.
type Calendar interface {
	IsTradingDay(d time.Time) bool
	NextTradingDay(d time.Time) time.Time
}

// IndexPublisher forwards computed values to downstream consumers.
type IndexPublisher interface {
	PublishIndex(ctx context.Context, v models.IndexValue) error
	Close() error
}

// Metrics is implemented by the prometheus recorder.
type Metrics interface {
	RecordFetch(result string)
	RecordRetry(reason string)
	RecordLeg(outcome string)
	RecordDay(outcome string)
	RecordIndex(indexType, outcome string)
	RecordIndexValue(symbol, indexType string, value float64)
	RecordLatency(op string, seconds float64)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) RecordFetch(string)                       {}
func (NopMetrics) RecordRetry(string)                       {}
func (NopMetrics) RecordLeg(string)                         {}
func (NopMetrics) RecordDay(string)                         {}
func (NopMetrics) RecordIndex(string, string)               {}
func (NopMetrics) RecordIndexValue(string, string, float64) {}
func (NopMetrics) RecordLatency(string, float64)            {}
