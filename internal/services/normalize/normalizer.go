package normalize

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"VolPull/internal/domain/models"
	"VolPull/pkg/logger"
	"VolPull/pkg/util"
)

// ErrMissingField marks a provider row that cannot be turned into a quote.
var ErrMissingField = errors.New("missing required field")

// RowError describes one skipped row.
type RowError struct {
	Index int
	Err   error
}

// Result is the outcome of normalizing one fetch.
type Result struct {
	Quotes []models.OptionQuote
	// Near and Next are the expiries kept; zero when the bucket is undefined.
	Near    int
	Next    int
	Dropped int
	Skipped []RowError
}

// Normalizer converts provider rows into classified option quotes.
type Normalizer struct {
	log *logger.Logger
}

func NewNormalizer(log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.Nop()
	}
	return &Normalizer{log: log}
}

// Classify picks the largest dte below horizon and the smallest above it
// among the distinct positive values in dtes.
func Classify(dtes []int, horizon int) (near, next int, okNear, okNext bool) {
	for _, d := range dtes {
		if d <= 0 {
			continue
		}
		if d < horizon && (!okNear || d > near) {
			near, okNear = d, true
		}
		if d > horizon && (!okNext || d < next) {
			next, okNext = d, true
		}
	}
	return near, next, okNear, okNext
}

// Normalize parses rows, classifies them against horizon and keeps only the
// quotes of the near and next expiries. Malformed rows are logged and skipped.
func (n *Normalizer) Normalize(symbol string, tradeDate time.Time, rows []models.RawQuote, horizon int) Result {
	tradeDate = util.DateOf(tradeDate)
	var res Result

	parsed := make([]models.OptionQuote, 0, len(rows))
	seen := make(map[int]struct{})
	for i, raw := range rows {
		q, err := ParseRow(symbol, tradeDate, raw)
		if err != nil {
			res.Skipped = append(res.Skipped, RowError{Index: i, Err: err})
			n.log.Warn("skip provider row",
				logger.String("symbol", symbol),
				logger.Date("trade_date", tradeDate),
				logger.Int("row", i),
				logger.Error(err),
			)
			continue
		}
		parsed = append(parsed, q)
		seen[q.DTE] = struct{}{}
	}

	dtes := make([]int, 0, len(seen))
	for d := range seen {
		dtes = append(dtes, d)
	}
	sort.Ints(dtes)

	near, next, okNear, okNext := Classify(dtes, horizon)
	if okNear {
		res.Near = near
	}
	if okNext {
		res.Next = next
	}

	for _, q := range parsed {
		switch {
		case okNear && q.DTE == near:
			q.TermBucket = models.BucketFor(models.TermNear, horizon)
		case okNext && q.DTE == next:
			q.TermBucket = models.BucketFor(models.TermNext, horizon)
		default:
			res.Dropped++
			continue
		}
		res.Quotes = append(res.Quotes, q)
	}
	return res
}

// ParseRow validates one provider row and builds an unclassified quote.
func ParseRow(symbol string, tradeDate time.Time, raw models.RawQuote) (models.OptionQuote, error) {
	cp, ok := models.ParseOptionType(strings.TrimSpace(raw.CallPut))
	if !ok {
		return models.OptionQuote{}, fmt.Errorf("%w: call_put %q", ErrMissingField, raw.CallPut)
	}
	if raw.ExpirationDate == "" {
		return models.OptionQuote{}, fmt.Errorf("%w: expiration_date", ErrMissingField)
	}
	expiry, ok := util.ParseDate(strings.TrimSpace(raw.ExpirationDate))
	if !ok {
		return models.OptionQuote{}, fmt.Errorf("%w: expiration_date %q", ErrMissingField, raw.ExpirationDate)
	}
	if raw.Strike == nil || *raw.Strike <= 0 {
		return models.OptionQuote{}, fmt.Errorf("%w: price_strike", ErrMissingField)
	}

	dte := util.DaysBetween(tradeDate, expiry)
	if raw.DTE != nil {
		dte = *raw.DTE
	}

	id := strings.TrimSpace(raw.OptionSymbol)
	root := Root(id)
	if root == "" {
		root = symbol
	}
	if id == "" {
		id = fmt.Sprintf("%s %s %s %g", symbol, util.FormatDate(expiry), cp, *raw.Strike)
	}

	q := models.OptionQuote{
		Symbol:          symbol,
		TradeDate:       tradeDate,
		OptionID:        id,
		Root:            root,
		CP:              cp,
		Expiry:          expiry,
		DTE:             dte,
		Strike:          *raw.Strike,
		Bid:             deref(raw.Bid),
		Ask:             deref(raw.Ask),
		Mid:             Mid(raw),
		IV:              deref(raw.IV),
		Delta:           deref(raw.Delta),
		Gamma:           deref(raw.Gamma),
		Theta:           deref(raw.Theta),
		Vega:            deref(raw.Vega),
		Volume:          int64(deref(raw.Volume)),
		OpenInterest:    int64(deref(raw.OpenInterest)),
		UnderlyingPrice: deref(raw.UnderlyingPrice),
		Settlement:      deref(raw.IsSettlement) != 0,
	}
	return q, nil
}

// Mid is (bid+ask)/2 when both sides are quoted, else the last price, else 0.
func Mid(raw models.RawQuote) float64 {
	if raw.Bid != nil && raw.Ask != nil {
		return (*raw.Bid + *raw.Ask) / 2
	}
	return deref(raw.Price)
}

// Root extracts the leading alphabetic root of an OCC style option symbol
// such as "SPY   240202C00480000".
func Root(optionSymbol string) string {
	end := strings.IndexFunc(optionSymbol, func(r rune) bool {
		return unicode.IsDigit(r) || unicode.IsSpace(r)
	})
	if end < 0 {
		return ""
	}
	return optionSymbol[:end]
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
