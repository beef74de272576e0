package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	applogger "VolPull/pkg/logger"
	pkgpg "VolPull/pkg/postgres"
	"VolPull/pkg/util"

	"github.com/jmoiron/sqlx"
)

// PostgresSchema creates the tables used by PostgresStore.
var PostgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS option_quotes (
		symbol           TEXT NOT NULL,
		trade_date       DATE NOT NULL,
		option_id        TEXT NOT NULL,
		root             TEXT NOT NULL DEFAULT '',
		call_put         CHAR(1) NOT NULL,
		expiration_date  DATE NOT NULL,
		dte              INTEGER NOT NULL,
		term_bucket      TEXT NOT NULL,
		strike           DOUBLE PRECISION NOT NULL,
		bid              DOUBLE PRECISION NOT NULL DEFAULT 0,
		ask              DOUBLE PRECISION NOT NULL DEFAULT 0,
		mid              DOUBLE PRECISION NOT NULL DEFAULT 0,
		iv               DOUBLE PRECISION NOT NULL DEFAULT 0,
		delta            DOUBLE PRECISION NOT NULL DEFAULT 0,
		gamma            DOUBLE PRECISION NOT NULL DEFAULT 0,
		theta            DOUBLE PRECISION NOT NULL DEFAULT 0,
		vega             DOUBLE PRECISION NOT NULL DEFAULT 0,
		volume           BIGINT NOT NULL DEFAULT 0,
		open_interest    BIGINT NOT NULL DEFAULT 0,
		underlying_price DOUBLE PRECISION NOT NULL DEFAULT 0,
		is_settlement    BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (symbol, trade_date, option_id)
	)`,
	`CREATE INDEX IF NOT EXISTS option_quotes_leg_idx
		ON option_quotes (symbol, trade_date, call_put, dte)`,
	`CREATE TABLE IF NOT EXISTS daily_snapshots (
		symbol     TEXT NOT NULL,
		trade_date DATE NOT NULL,
		completed  BOOLEAN NOT NULL,
		skipped    BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (symbol, trade_date)
	)`,
	`CREATE TABLE IF NOT EXISTS symbols (
		symbol            TEXT PRIMARY KEY,
		active            BOOLEAN NOT NULL DEFAULT TRUE,
		first_option_date DATE,
		last_option_date  DATE
	)`,
	`CREATE TABLE IF NOT EXISTS risk_free_rates (
		trade_date DATE NOT NULL,
		tenor      TEXT NOT NULL,
		rate_bey   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (trade_date, tenor)
	)`,
	`CREATE TABLE IF NOT EXISTS index_values (
		symbol        TEXT NOT NULL,
		trade_date    DATE NOT NULL,
		index_type    TEXT NOT NULL,
		value         DOUBLE PRECISION NOT NULL,
		variance_near DOUBLE PRECISION NOT NULL,
		variance_next DOUBLE PRECISION NOT NULL,
		t_near        DOUBLE PRECISION NOT NULL,
		t_next        DOUBLE PRECISION NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (symbol, trade_date, index_type)
	)`,
}

// PostgresStore implements repository.Store on PostgreSQL.
type PostgresStore struct {
	pg *pkgpg.Client
	db *sqlx.DB
	l  *applogger.Logger
}

func NewPostgresStore(pg *pkgpg.Client, l *applogger.Logger) *PostgresStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &PostgresStore{pg: pg, db: pg.DB(), l: l}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	return s.pg.InitSchema(ctx, PostgresSchema)
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pg.Health(ctx)
}

func (s *PostgresStore) Close() error {
	return s.pg.Close()
}

func (s *PostgresStore) FindQuotes(ctx context.Context, symbol string, tradeDate time.Time, buckets []models.TermBucket, types []models.OptionType) ([]models.OptionQuote, error) {
	q := `SELECT ` + quoteColumns + ` FROM option_quotes WHERE symbol = ? AND trade_date = ?`
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
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		s.l.Error("postgres find_quotes error",
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

func (s *PostgresStore) ExistsLeg(ctx context.Context, symbol string, tradeDate time.Time, cp models.OptionType, w models.DTEWindow) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM option_quotes
		WHERE symbol = $1 AND trade_date = $2 AND call_put = $3 AND dte BETWEEN $4 AND $5)`
	var ok bool
	if err := s.db.GetContext(ctx, &ok, q, symbol, util.DateOf(tradeDate), string(cp), w.From, w.To); err != nil {
		return false, fmt.Errorf("exists leg: %w", err)
	}
	return ok, nil
}

// InsertQuotes keeps the first row written for (symbol, trade_date, option_id).
func (s *PostgresStore) InsertQuotes(ctx context.Context, quotes []models.OptionQuote) error {
	if len(quotes) == 0 {
		return nil
	}
	const q = `INSERT INTO option_quotes (` + quoteColumns + `) VALUES (
		:symbol, :trade_date, :option_id, :root, :call_put, :expiration_date, :dte, :term_bucket,
		:strike, :bid, :ask, :mid, :iv, :delta, :gamma, :theta, :vega, :volume, :open_interest,
		:underlying_price, :is_settlement)
		ON CONFLICT (symbol, trade_date, option_id) DO NOTHING`
	_, err := s.namedBatch(ctx, q, len(quotes), func(i int) interface{} { return toQuoteRow(quotes[i]) })
	return err
}

func (s *PostgresStore) TradeDates(ctx context.Context, symbol string) ([]time.Time, error) {
	var rows []time.Time
	const q = `SELECT DISTINCT trade_date FROM option_quotes WHERE symbol = $1 ORDER BY trade_date`
	if err := s.db.SelectContext(ctx, &rows, q, symbol); err != nil {
		return nil, fmt.Errorf("trade dates: %w", err)
	}
	return datesOf(rows), nil
}

func (s *PostgresStore) LastCompletedDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	var d sql.NullTime
	const q = `SELECT MAX(trade_date) FROM daily_snapshots WHERE symbol = $1 AND completed`
	if err := s.db.GetContext(ctx, &d, q, symbol); err != nil {
		return time.Time{}, false, fmt.Errorf("last completed date: %w", err)
	}
	if !d.Valid {
		return time.Time{}, false, nil
	}
	return util.DateOf(d.Time), true, nil
}

func (s *PostgresStore) MarkDay(ctx context.Context, snap models.DailySnapshot) error {
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO daily_snapshots (symbol, trade_date, completed, skipped, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol, trade_date) DO UPDATE
		SET completed = EXCLUDED.completed, skipped = EXCLUDED.skipped, updated_at = EXCLUDED.updated_at`
	if _, err := s.db.ExecContext(ctx, q, snap.Symbol, util.DateOf(snap.TradeDate), snap.Completed, snap.Skipped, snap.UpdatedAt); err != nil {
		return fmt.Errorf("mark day: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSymbol(ctx context.Context, symbol string) (models.Symbol, bool, error) {
	var row symbolRow
	const q = `SELECT symbol, active, first_option_date, last_option_date FROM symbols WHERE symbol = $1`
	err := s.db.GetContext(ctx, &row, q, symbol)
	if err == sql.ErrNoRows {
		return models.Symbol{}, false, nil
	}
	if err != nil {
		return models.Symbol{}, false, fmt.Errorf("get symbol: %w", err)
	}
	return row.model(), true, nil
}

func (s *PostgresStore) SaveSymbol(ctx context.Context, sym models.Symbol) error {
	const q = `INSERT INTO symbols (symbol, active, first_option_date, last_option_date)
		VALUES (:symbol, :active, :first_option_date, :last_option_date)
		ON CONFLICT (symbol) DO UPDATE
		SET active = EXCLUDED.active,
			first_option_date = EXCLUDED.first_option_date,
			last_option_date = EXCLUDED.last_option_date`
	if _, err := s.db.NamedExecContext(ctx, q, toSymbolRow(sym)); err != nil {
		return fmt.Errorf("save symbol: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindCurve(ctx context.Context, date time.Time) (models.RateCurve, error) {
	day := util.DateOf(date)
	var rows []rateRow
	const q = `SELECT trade_date, tenor, rate_bey FROM risk_free_rates WHERE trade_date = $1`
	if err := s.db.SelectContext(ctx, &rows, q, day); err != nil {
		return models.RateCurve{}, fmt.Errorf("find curve: %w", err)
	}
	curve := models.RateCurve{Date: day, Yields: make(map[string]float64, len(rows))}
	for _, r := range rows {
		curve.Yields[r.Tenor] = r.BEY
	}
	return curve, nil
}

func (s *PostgresStore) UpsertRates(ctx context.Context, rates []models.RiskFreeRate, overwrite bool) (int, error) {
	if len(rates) == 0 {
		return 0, nil
	}
	q := `INSERT INTO risk_free_rates (trade_date, tenor, rate_bey) VALUES (:trade_date, :tenor, :rate_bey)`
	if overwrite {
		q += ` ON CONFLICT (trade_date, tenor) DO UPDATE SET rate_bey = EXCLUDED.rate_bey`
	} else {
		q += ` ON CONFLICT (trade_date, tenor) DO NOTHING`
	}
	n, err := s.namedBatch(ctx, q, len(rates), func(i int) interface{} {
		r := rates[i]
		return rateRow{TradeDate: util.DateOf(r.TradeDate), Tenor: r.Tenor, BEY: r.BEY}
	})
	return int(n), err
}

func (s *PostgresStore) Upsert(ctx context.Context, v models.IndexValue) error {
	const q = `INSERT INTO index_values (` + indexColumns + `)
		VALUES (:symbol, :trade_date, :index_type, :value, :variance_near, :variance_next, :t_near, :t_next, :updated_at)
		ON CONFLICT (symbol, trade_date, index_type) DO UPDATE
		SET value = EXCLUDED.value,
			variance_near = EXCLUDED.variance_near,
			variance_next = EXCLUDED.variance_next,
			t_near = EXCLUDED.t_near,
			t_next = EXCLUDED.t_next,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.db.NamedExecContext(ctx, q, toIndexRow(v)); err != nil {
		return fmt.Errorf("upsert index value: %w", err)
	}
	return nil
}

func (s *PostgresStore) Dates(ctx context.Context, symbol string, indexType models.IndexType) ([]time.Time, error) {
	var rows []time.Time
	const q = `SELECT trade_date FROM index_values WHERE symbol = $1 AND index_type = $2 ORDER BY trade_date`
	if err := s.db.SelectContext(ctx, &rows, q, symbol, string(indexType)); err != nil {
		return nil, fmt.Errorf("index dates: %w", err)
	}
	return datesOf(rows), nil
}

func (s *PostgresStore) Find(ctx context.Context, symbol string, indexType models.IndexType, from, to time.Time, limit int) ([]models.IndexValue, error) {
	q := `SELECT ` + indexColumns + ` FROM index_values WHERE symbol = ? AND index_type = ?`
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
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []indexRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("find index values: %w", err)
	}
	out := make([]models.IndexValue, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, symbol string, indexType models.IndexType) error {
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
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...); err != nil {
		return fmt.Errorf("delete index values: %w", err)
	}
	return nil
}

// namedBatch runs a named statement once per row in a single transaction and
// returns the total rows affected.
func (s *PostgresStore) namedBatch(ctx context.Context, q string, n int, row func(i int) interface{}) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareNamedContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	var affected int64
	for i := 0; i < n; i++ {
		res, err := stmt.ExecContext(ctx, row(i))
		if err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("exec: %w", err)
		}
		if k, err := res.RowsAffected(); err == nil {
			affected += k
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return affected, nil
}

var _ drepo.Store = (*PostgresStore)(nil)
