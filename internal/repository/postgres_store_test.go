package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"VolPull/internal/domain/models"
	pkgpg "VolPull/pkg/postgres"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var errBoom = errors.New("boom")

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(pkgpg.NewFromDB(sqlx.NewDb(db, "postgres")), nil), mock
}

var quoteColumnNames = []string{
	"symbol", "trade_date", "option_id", "root", "call_put", "expiration_date", "dte", "term_bucket",
	"strike", "bid", "ask", "mid", "iv", "delta", "gamma", "theta", "vega", "volume", "open_interest",
	"underlying_price", "is_settlement",
}

func quoteRows() *sqlmock.Rows {
	return sqlmock.NewRows(quoteColumnNames).AddRow(
		"SPX", day("2024-01-02"), "SPX240126C04700000", "SPX", "C", day("2024-01-26"), int64(24), "near30",
		4700.0, 11.5, 12.5, 12.0, 0.15, 0.5, 0.01, -1.0, 3.0, int64(10), int64(100), 4750.0, false,
	)
}

func sampleQuotes() []models.OptionQuote {
	q := models.OptionQuote{Symbol: "SPX", TradeDate: day("2024-01-02"), OptionID: "SPX240126C04700000",
		Root: "SPX", CP: models.Call, Expiry: day("2024-01-26"), DTE: 24, TermBucket: models.Near30,
		Strike: 4700, Bid: 11.5, Ask: 12.5, Mid: 12}
	dup := q
	dup.Mid = 99
	return []models.OptionQuote{q, dup}
}

func TestPostgresInsertQuotesKeepsFirstWrite(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("$21) ON CONFLICT (symbol, trade_date, option_id) DO NOTHING"))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := s.InsertQuotes(context.Background(), sampleQuotes()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresInsertQuotesRollsBackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO option_quotes")
	prep.ExpectExec().WillReturnError(errBoom)
	mock.ExpectRollback()

	if err := s.InsertQuotes(context.Background(), sampleQuotes()[:1]); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresExistsLegWindow(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("call_put = $3 AND dte BETWEEN $4 AND $5")).
		WithArgs("SPX", sqlmock.AnyArg(), "P", 21, 24).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.ExistsLeg(context.Background(), "SPX", day("2024-01-02"), models.Put, models.DTEWindow{From: 21, To: 24})
	if err != nil || !ok {
		t.Fatalf("exists leg: %v %v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresFindQuotesExpandsFilters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE symbol = $1 AND trade_date = $2 AND term_bucket IN ($3) AND call_put IN ($4)")).
		WithArgs("SPX", sqlmock.AnyArg(), "near30", "C").
		WillReturnRows(quoteRows())

	got, err := s.FindQuotes(context.Background(), "SPX", day("2024-01-02"),
		[]models.TermBucket{models.Near30}, []models.OptionType{models.Call})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 || got[0].DTE != 24 || got[0].Mid != 12 || got[0].CP != models.Call {
		t.Fatalf("unexpected quotes %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUpsertRatesCountsWrites(t *testing.T) {
	rates := []models.RiskFreeRate{
		{TradeDate: day("2024-01-02"), Tenor: "1M", BEY: 5.3},
		{TradeDate: day("2024-01-02"), Tenor: "3M", BEY: 5.4},
	}

	s, mock := newMockPostgresStore(t)
	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("ON CONFLICT (trade_date, tenor) DO NOTHING"))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := s.UpsertRates(context.Background(), rates, false)
	if err != nil || n != 1 {
		t.Fatalf("keep existing: n=%d err=%v", n, err)
	}

	mock.ExpectBegin()
	prep = mock.ExpectPrepare(regexp.QuoteMeta("ON CONFLICT (trade_date, tenor) DO UPDATE SET rate_bey = EXCLUDED.rate_bey"))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	n, err = s.UpsertRates(context.Background(), rates, true)
	if err != nil || n != 2 {
		t.Fatalf("overwrite: n=%d err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresUpsertIndexValue(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (symbol, trade_date, index_type) DO UPDATE")).
		WithArgs("SPX", sqlmock.AnyArg(), "VIX", 14.5, sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	v := models.IndexValue{Symbol: "SPX", TradeDate: day("2024-01-02"), IndexType: models.IndexVIX, Value: 14.5}
	if err := s.Upsert(context.Background(), v); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
