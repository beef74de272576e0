package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	pkgch "VolPull/pkg/clickhouse"
	applogger "VolPull/pkg/logger"
	"VolPull/pkg/util"

	"github.com/jmoiron/sqlx"
)

// firstWriteEpochMs (2100-01-01 UTC) turns an earlier ingest time into a
// larger option_quotes version, so merges keep the first row written.
const firstWriteEpochMs = "4102444800000"

// ClickHouseSchema creates the tables used by ClickHouseStore. ReplacingMergeTree
// collapses rows sharing the ORDER BY key, reads use FINAL.
var ClickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS option_quotes (
		symbol           LowCardinality(String),
		trade_date       Date,
		option_id        String,
		root             String,
		call_put         LowCardinality(String),
		expiration_date  Date,
		dte              Int32,
		term_bucket      LowCardinality(String),
		strike           Float64,
		bid              Float64,
		ask              Float64,
		mid              Float64,
		iv               Float64,
		delta            Float64,
		gamma            Float64,
		theta            Float64,
		vega             Float64,
		volume           Int64,
		open_interest    Int64,
		underlying_price Float64,
		is_settlement    Bool,
		ingested_at      DateTime64(3) DEFAULT now64(3),
		version          UInt64 MATERIALIZED toUInt64(` + firstWriteEpochMs + ` - toUnixTimestamp64Milli(ingested_at))
	) ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMM(trade_date)
	ORDER BY (symbol, trade_date, option_id)`,
	`CREATE TABLE IF NOT EXISTS daily_snapshots (
		symbol     LowCardinality(String),
		trade_date Date,
		completed  Bool,
		skipped    Bool,
		updated_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (symbol, trade_date)`,
	`CREATE TABLE IF NOT EXISTS symbols (
		symbol            String,
		active            Bool,
		first_option_date Nullable(Date),
		last_option_date  Nullable(Date),
		updated_at        DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY symbol`,
	`CREATE TABLE IF NOT EXISTS risk_free_rates (
		trade_date Date,
		tenor      LowCardinality(String),
		rate_bey   Float64,
		updated_at DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (trade_date, tenor)`,
	`CREATE TABLE IF NOT EXISTS index_values (
		symbol        LowCardinality(String),
		trade_date    Date,
		index_type    LowCardinality(String),
		value         Float64,
		variance_near Float64,
		variance_next Float64,
		t_near        Float64,
		t_next        Float64,
		updated_at    DateTime64(3)
	) ENGINE = ReplacingMergeTree(updated_at)
	ORDER BY (symbol, index_type, trade_date)`,
}

// ClickHouseStore implements repository.Store on ClickHouse.
type ClickHouseStore struct {
	ch *pkgch.Client
	db *sqlx.DB
	l  *applogger.Logger
}

func NewClickHouseStore(ch *pkgch.Client, l *applogger.Logger) *ClickHouseStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &ClickHouseStore{ch: ch, db: sqlx.NewDb(ch.DB(), "clickhouse"), l: l}
}

func (s *ClickHouseStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, ClickHouseSchema)
}

func (s *ClickHouseStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *ClickHouseStore) Close() error {
	return s.ch.Close()
}

func (s *ClickHouseStore) FindQuotes(ctx context.Context, symbol string, tradeDate time.Time, buckets []models.TermBucket, types []models.OptionType) ([]models.OptionQuote, error) {
	q := `SELECT ` + quoteColumns + ` FROM option_quotes FINAL WHERE symbol = ? AND trade_date = ?`
	args := []interface{}{symbol, util.DateOf(tradeDate)}
	if len(buckets) > 0 {
		q += ` AND term_bucket IN (?)`
		args = append(args, bucketStrings(buckets))
	}
	if len(types) > 0 {
		q += ` AND call_put IN (?)`
		args = append(args, typeStrings(types))
	}
	q += ` ORDER BY term_bucket, call_put, strike, option_id`

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return nil, fmt.Errorf("find quotes: %w", err)
	}
	var rows []quoteRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		s.l.Error("clickhouse find_quotes error",
			applogger.String("symbol", symbol),
			applogger.Date("trade_date", tradeDate),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("find quotes: %w", err)
	}
	out := make([]models.OptionQuote, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *ClickHouseStore) ExistsLeg(ctx context.Context, symbol string, tradeDate time.Time, cp models.OptionType, w models.DTEWindow) (bool, error) {
	const q = `SELECT count() FROM option_quotes FINAL
		WHERE symbol = ? AND trade_date = ? AND call_put = ? AND dte BETWEEN ? AND ?`
	var n uint64
	if err := s.db.GetContext(ctx, &n, q, symbol, util.DateOf(tradeDate), string(cp), w.From, w.To); err != nil {
		return false, fmt.Errorf("exists leg: %w", err)
	}
	return n > 0, nil
}

func (s *ClickHouseStore) InsertQuotes(ctx context.Context, quotes []models.OptionQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	return s.batch(ctx, `INSERT INTO option_quotes (`+quoteColumns+`)`, len(quotes), func(i int) []interface{} {
		return toQuoteRow(quotes[i]).args()
	})
}

func (s *ClickHouseStore) TradeDates(ctx context.Context, symbol string) ([]time.Time, error) {
	var rows []time.Time
	const q = `SELECT DISTINCT trade_date FROM option_quotes WHERE symbol = ? ORDER BY trade_date`
	if err := s.db.SelectContext(ctx, &rows, q, symbol); err != nil {
		return nil, fmt.Errorf("trade dates: %w", err)
	}
	return datesOf(rows), nil
}

func (s *ClickHouseStore) LastCompletedDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	const q = `SELECT trade_date FROM daily_snapshots FINAL
		WHERE symbol = ? AND completed ORDER BY trade_date DESC LIMIT 1`
	var d time.Time
	err := s.db.GetContext(ctx, &d, q, symbol)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last completed date: %w", err)
	}
	return util.DateOf(d), true, nil
}

func (s *ClickHouseStore) MarkDay(ctx context.Context, snap models.DailySnapshot) error {
	updated := snap.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	const q = `INSERT INTO daily_snapshots (symbol, trade_date, completed, skipped, updated_at)`
	return s.batch(ctx, q, 1, func(int) []interface{} {
		return []interface{}{snap.Symbol, util.DateOf(snap.TradeDate), snap.Completed, snap.Skipped, updated}
	})
}

func (s *ClickHouseStore) GetSymbol(ctx context.Context, symbol string) (models.Symbol, bool, error) {
	const q = `SELECT symbol, active, first_option_date, last_option_date FROM symbols FINAL WHERE symbol = ?`
	var row symbolRow
	err := s.db.GetContext(ctx, &row, q, symbol)
	if err == sql.ErrNoRows {
		return models.Symbol{}, false, nil
	}
	if err != nil {
		return models.Symbol{}, false, fmt.Errorf("get symbol: %w", err)
	}
	return row.model(), true, nil
}

func (s *ClickHouseStore) SaveSymbol(ctx context.Context, sym models.Symbol) error {
	row := toSymbolRow(sym)
	const q = `INSERT INTO symbols (symbol, active, first_option_date, last_option_date, updated_at)`
	return s.batch(ctx, q, 1, func(int) []interface{} {
		return []interface{}{row.Symbol, row.Active, nullableArg(row.FirstOptionDate), nullableArg(row.LastOptionDate), time.Now().UTC()}
	})
}

func (s *ClickHouseStore) FindCurve(ctx context.Context, date time.Time) (models.RateCurve, error) {
	day := util.DateOf(date)
	var rows []rateRow
	const q = `SELECT trade_date, tenor, rate_bey FROM risk_free_rates FINAL WHERE trade_date = ?`
	if err := s.db.SelectContext(ctx, &rows, q, day); err != nil {
		return models.RateCurve{}, fmt.Errorf("find curve: %w", err)
	}
	curve := models.RateCurve{Date: day, Yields: make(map[string]float64, len(rows))}
	for _, r := range rows {
		curve.Yields[r.Tenor] = r.BEY
	}
	return curve, nil
}

func (s *ClickHouseStore) UpsertRates(ctx context.Context, rates []models.RiskFreeRate, overwrite bool) (int, error) {
	if len(rates) == 0 {
		return 0, nil
	}
	pending := rates
	if !overwrite {
		existing, err := s.existingRateKeys(ctx, rates)
		if err != nil {
			return 0, err
		}
		pending = make([]models.RiskFreeRate, 0, len(rates))
		for _, r := range rates {
			if _, ok := existing[rateKey{day: util.DateOf(r.TradeDate), tenor: r.Tenor}]; !ok {
				pending = append(pending, r)
			}
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	err := s.batch(ctx, `INSERT INTO risk_free_rates (trade_date, tenor, rate_bey, updated_at)`, len(pending), func(i int) []interface{} {
		r := pending[i]
		return []interface{}{util.DateOf(r.TradeDate), r.Tenor, r.BEY, now}
	})
	if err != nil {
		return 0, err
	}
	return len(pending), nil
}

func (s *ClickHouseStore) existingRateKeys(ctx context.Context, rates []models.RiskFreeRate) (map[rateKey]struct{}, error) {
	from, to := util.DateOf(rates[0].TradeDate), util.DateOf(rates[0].TradeDate)
	for _, r := range rates[1:] {
		d := util.DateOf(r.TradeDate)
		if d.Before(from) {
			from = d
		}
		if d.After(to) {
			to = d
		}
	}
	var rows []rateRow
	const q = `SELECT trade_date, tenor, rate_bey FROM risk_free_rates FINAL WHERE trade_date BETWEEN ? AND ?`
	if err := s.db.SelectContext(ctx, &rows, q, from, to); err != nil {
		return nil, fmt.Errorf("existing rates: %w", err)
	}
	out := make(map[rateKey]struct{}, len(rows))
	for _, r := range rows {
		out[rateKey{day: util.DateOf(r.TradeDate), tenor: r.Tenor}] = struct{}{}
	}
	return out, nil
}

func (s *ClickHouseStore) Upsert(ctx context.Context, v models.IndexValue) error {
	row := toIndexRow(v)
	return s.batch(ctx, `INSERT INTO index_values (`+indexColumns+`)`, 1, func(int) []interface{} {
		return []interface{}{row.Symbol, row.TradeDate, row.IndexType, row.Value, row.VarianceNear,
			row.VarianceNext, row.TNear, row.TNext, row.UpdatedAt}
	})
}

func (s *ClickHouseStore) Dates(ctx context.Context, symbol string, indexType models.IndexType) ([]time.Time, error) {
	var rows []time.Time
	const q = `SELECT DISTINCT trade_date FROM index_values FINAL WHERE symbol = ? AND index_type = ? ORDER BY trade_date`
	if err := s.db.SelectContext(ctx, &rows, q, symbol, string(indexType)); err != nil {
		return nil, fmt.Errorf("index dates: %w", err)
	}
	return datesOf(rows), nil
}

func (s *ClickHouseStore) Find(ctx context.Context, symbol string, indexType models.IndexType, from, to time.Time, limit int) ([]models.IndexValue, error) {
	q := `SELECT ` + indexColumns + ` FROM index_values FINAL WHERE symbol = ? AND index_type = ?`
	args := []interface{}{symbol, string(indexType)}
	if !from.IsZero() {
		q += ` AND trade_date >= ?`
		args = append(args, util.DateOf(from))
	}
	if !to.IsZero() {
		q += ` AND trade_date <= ?`
		args = append(args, util.DateOf(to))
	}
	q += ` ORDER BY trade_date`
	if limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, limit)
	}
	var rows []indexRow
	if err := s.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("find index values: %w", err)
	}
	out := make([]models.IndexValue, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// Delete uses a lightweight DELETE so the rows are gone before the next read.
func (s *ClickHouseStore) Delete(ctx context.Context, symbol string, indexType models.IndexType) error {
	q := `DELETE FROM index_values WHERE 1 = 1`
	var args []interface{}
	if symbol != "" {
		q += ` AND symbol = ?`
		args = append(args, symbol)
	}
	if indexType != "" {
		q += ` AND index_type = ?`
		args = append(args, string(indexType))
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("delete index values: %w", err)
	}
	return nil
}

// batch sends n rows through one prepared INSERT inside a transaction.
func (s *ClickHouseStore) batch(ctx context.Context, insert string, n int, row func(i int) []interface{}) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare batch: %w", err)
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("append batch: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func nullableArg(t sql.NullTime) interface{} {
	if !t.Valid {
		return nil
	}
	return t.Time
}

var _ drepo.Store = (*ClickHouseStore)(nil)
