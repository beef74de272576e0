package repository

import (
	"database/sql"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/pkg/util"
)

// SQL row shapes shared by the ClickHouse and PostgreSQL stores.

type quoteRow struct {
	Symbol          string    `db:"symbol"`
	TradeDate       time.Time `db:"trade_date"`
	OptionID        string    `db:"option_id"`
	Root            string    `db:"root"`
	CallPut         string    `db:"call_put"`
	Expiry          time.Time `db:"expiration_date"`
	DTE             int       `db:"dte"`
	TermBucket      string    `db:"term_bucket"`
	Strike          float64   `db:"strike"`
	Bid             float64   `db:"bid"`
	Ask             float64   `db:"ask"`
	Mid             float64   `db:"mid"`
	IV              float64   `db:"iv"`
	Delta           float64   `db:"delta"`
	Gamma           float64   `db:"gamma"`
	Theta           float64   `db:"theta"`
	Vega            float64   `db:"vega"`
	Volume          int64     `db:"volume"`
	OpenInterest    int64     `db:"open_interest"`
	UnderlyingPrice float64   `db:"underlying_price"`
	Settlement      bool      `db:"is_settlement"`
}

const quoteColumns = `symbol, trade_date, option_id, root, call_put, expiration_date, dte, term_bucket,
	strike, bid, ask, mid, iv, delta, gamma, theta, vega, volume, open_interest, underlying_price, is_settlement`

func toQuoteRow(q models.OptionQuote) quoteRow {
	return quoteRow{
		Symbol:          q.Symbol,
		TradeDate:       util.DateOf(q.TradeDate),
		OptionID:        q.OptionID,
		Root:            q.Root,
		CallPut:         string(q.CP),
		Expiry:          util.DateOf(q.Expiry),
		DTE:             q.DTE,
		TermBucket:      string(q.TermBucket),
		Strike:          q.Strike,
		Bid:             q.Bid,
		Ask:             q.Ask,
		Mid:             q.Mid,
		IV:              q.IV,
		Delta:           q.Delta,
		Gamma:           q.Gamma,
		Theta:           q.Theta,
		Vega:            q.Vega,
		Volume:          q.Volume,
		OpenInterest:    q.OpenInterest,
		UnderlyingPrice: q.UnderlyingPrice,
		Settlement:      q.Settlement,
	}
}

func (r quoteRow) model() models.OptionQuote {
	return models.OptionQuote{
		Symbol:          r.Symbol,
		TradeDate:       util.DateOf(r.TradeDate),
		OptionID:        r.OptionID,
		Root:            r.Root,
		CP:              models.OptionType(r.CallPut),
		Expiry:          util.DateOf(r.Expiry),
		DTE:             r.DTE,
		TermBucket:      models.TermBucket(r.TermBucket),
		Strike:          r.Strike,
		Bid:             r.Bid,
		Ask:             r.Ask,
		Mid:             r.Mid,
		IV:              r.IV,
		Delta:           r.Delta,
		Gamma:           r.Gamma,
		Theta:           r.Theta,
		Vega:            r.Vega,
		Volume:          r.Volume,
		OpenInterest:    r.OpenInterest,
		UnderlyingPrice: r.UnderlyingPrice,
		Settlement:      r.Settlement,
	}
}

// args returns the row in quoteColumns order.
func (r quoteRow) args() []interface{} {
	return []interface{}{
		r.Symbol, r.TradeDate, r.OptionID, r.Root, r.CallPut, r.Expiry, r.DTE, r.TermBucket,
		r.Strike, r.Bid, r.Ask, r.Mid, r.IV, r.Delta, r.Gamma, r.Theta, r.Vega,
		r.Volume, r.OpenInterest, r.UnderlyingPrice, r.Settlement,
	}
}

type symbolRow struct {
	Symbol          string       `db:"symbol"`
	Active          bool         `db:"active"`
	FirstOptionDate sql.NullTime `db:"first_option_date"`
	LastOptionDate  sql.NullTime `db:"last_option_date"`
}

func toSymbolRow(s models.Symbol) symbolRow {
	return symbolRow{
		Symbol:          s.Symbol,
		Active:          s.Active,
		FirstOptionDate: nullDate(s.FirstOptionDate),
		LastOptionDate:  nullDate(s.LastOptionDate),
	}
}

func (r symbolRow) model() models.Symbol {
	s := models.Symbol{Symbol: r.Symbol, Active: r.Active}
	if r.FirstOptionDate.Valid {
		s.FirstOptionDate = util.DateOf(r.FirstOptionDate.Time)
	}
	if r.LastOptionDate.Valid {
		s.LastOptionDate = util.DateOf(r.LastOptionDate.Time)
	}
	return s
}

func nullDate(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: util.DateOf(t), Valid: true}
}

type rateRow struct {
	TradeDate time.Time `db:"trade_date"`
	Tenor     string    `db:"tenor"`
	BEY       float64   `db:"rate_bey"`
}

type indexRow struct {
	Symbol       string    `db:"symbol"`
	TradeDate    time.Time `db:"trade_date"`
	IndexType    string    `db:"index_type"`
	Value        float64   `db:"value"`
	VarianceNear float64   `db:"variance_near"`
	VarianceNext float64   `db:"variance_next"`
	TNear        float64   `db:"t_near"`
	TNext        float64   `db:"t_next"`
	UpdatedAt    time.Time `db:"updated_at"`
}

const indexColumns = `symbol, trade_date, index_type, value, variance_near, variance_next, t_near, t_next, updated_at`

func toIndexRow(v models.IndexValue) indexRow {
	updated := v.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return indexRow{
		Symbol:       v.Symbol,
		TradeDate:    util.DateOf(v.TradeDate),
		IndexType:    string(v.IndexType),
		Value:        v.Value,
		VarianceNear: v.VarianceNear,
		VarianceNext: v.VarianceNext,
		TNear:        v.TNear,
		TNext:        v.TNext,
		UpdatedAt:    updated,
	}
}

func (r indexRow) model() models.IndexValue {
	return models.IndexValue{
		Symbol:       r.Symbol,
		TradeDate:    util.DateOf(r.TradeDate),
		IndexType:    models.IndexType(r.IndexType),
		Value:        r.Value,
		VarianceNear: r.VarianceNear,
		VarianceNext: r.VarianceNext,
		TNear:        r.TNear,
		TNext:        r.TNext,
		UpdatedAt:    r.UpdatedAt,
	}
}

func bucketStrings(buckets []models.TermBucket) []string {
	out := make([]string, len(buckets))
	for i, b := range buckets {
		out[i] = string(b)
	}
	return out
}

func typeStrings(types []models.OptionType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

func datesOf(rows []time.Time) []time.Time {
	out := make([]time.Time, len(rows))
	for i, d := range rows {
		out[i] = util.DateOf(d)
	}
	return out
}
