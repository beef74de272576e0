package normalize

import (
	"errors"
	"testing"
	"time"

	"VolPull/internal/domain/models"
)

func f(v float64) *float64 { return &v }
func i(v int) *int         { return &v }

func TestClassify(t *testing.T) {
	dtes := []int{5, 25, 35, 80, 95}
	near, next, okN, okX := Classify(dtes, 30)
	if !okN || !okX || near != 25 || next != 35 {
		t.Fatalf("horizon 30: got %d/%d (%v,%v)", near, next, okN, okX)
	}
	near, next, okN, okX = Classify(dtes, 90)
	if !okN || !okX || near != 80 || next != 95 {
		t.Fatalf("horizon 90: got %d/%d (%v,%v)", near, next, okN, okX)
	}
	_, _, okN, okX = Classify([]int{0, 31, 40}, 30)
	if okN || !okX {
		t.Fatalf("expected undefined near bucket")
	}
	_, _, okN, okX = Classify([]int{30}, 30)
	if okN || okX {
		t.Fatalf("dte equal to horizon belongs to neither bucket")
	}
}

func row(cp string, dte int, strike float64) models.RawQuote {
	return models.RawQuote{
		OptionSymbol:   "",
		CallPut:        cp,
		ExpirationDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, dte).Format("2006-01-02"),
		DTE:            i(dte),
		Strike:         f(strike),
		Bid:            f(1.0),
		Ask:            f(1.2),
	}
}

func TestNormalizeKeepsOnlyNearAndNext(t *testing.T) {
	td := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := []models.RawQuote{
		row("C", 5, 100), row("C", 25, 100), row("P", 25, 95),
		row("C", 35, 100), row("P", 80, 100), row("C", 95, 100),
	}
	res := NewNormalizer(nil).Normalize("SPY", td, rows, 30)
	if len(res.Quotes) != 3 || res.Dropped != 3 {
		t.Fatalf("got %d quotes, %d dropped", len(res.Quotes), res.Dropped)
	}
	if res.Near != 25 || res.Next != 35 {
		t.Fatalf("near/next %d/%d", res.Near, res.Next)
	}
	for _, q := range res.Quotes {
		want := models.Near30
		if q.DTE == 35 {
			want = models.Next30
		}
		if q.TermBucket != want {
			t.Fatalf("dte %d bucket %s want %s", q.DTE, q.TermBucket, want)
		}
	}

	res = NewNormalizer(nil).Normalize("SPY", td, rows, 90)
	if len(res.Quotes) != 2 || res.Quotes[0].TermBucket != models.Near90 || res.Quotes[1].TermBucket != models.Next90 {
		t.Fatalf("horizon 90: %+v", res.Quotes)
	}
}

func TestNormalizeSkipsMalformedRows(t *testing.T) {
	td := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bad := row("C", 25, 100)
	bad.Strike = nil
	noCP := row("X", 25, 100)
	rows := []models.RawQuote{bad, noCP, row("P", 25, 100), row("P", 35, 100)}

	res := NewNormalizer(nil).Normalize("SPY", td, rows, 30)
	if len(res.Skipped) != 2 {
		t.Fatalf("expected 2 skipped rows, got %d", len(res.Skipped))
	}
	for _, s := range res.Skipped {
		if !errors.Is(s.Err, ErrMissingField) {
			t.Fatalf("unexpected error %v", s.Err)
		}
	}
	if len(res.Quotes) != 2 {
		t.Fatalf("expected batch to continue, got %d quotes", len(res.Quotes))
	}
}

func TestMidFallback(t *testing.T) {
	r := models.RawQuote{Bid: f(1), Ask: f(2), Price: f(9)}
	if m := Mid(r); m != 1.5 {
		t.Fatalf("mid %v", m)
	}
	r.Ask = nil
	if m := Mid(r); m != 9 {
		t.Fatalf("fallback mid %v", m)
	}
	r.Price = nil
	if m := Mid(r); m != 0 {
		t.Fatalf("empty mid %v", m)
	}
}

func TestParseRowDerivesFields(t *testing.T) {
	td := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	raw := models.RawQuote{
		OptionSymbol:   "SPY   240202C00480000",
		CallPut:        "c",
		ExpirationDate: "2024-02-02",
		Strike:         f(480),
		Price:          f(3.1),
	}
	q, err := ParseRow("SPY", td, raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if q.DTE != 31 || q.Root != "SPY" || q.CP != models.Call || q.Mid != 3.1 {
		t.Fatalf("unexpected quote %+v", q)
	}
	if q.OptionID != "SPY   240202C00480000" {
		t.Fatalf("option id %q", q.OptionID)
	}
}
