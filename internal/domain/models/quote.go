package models

import "time"

// OptionType is the call/put flag as the provider spells it.
type OptionType string

const (
	Call OptionType = "C"
	Put  OptionType = "P"
)

// ParseOptionType accepts C/P in any case as well as call/put.
func ParseOptionType(s string) (OptionType, bool) {
	switch s {
	case "C", "c", "call", "Call", "CALL":
		return Call, true
	case "P", "p", "put", "Put", "PUT":
		return Put, true
	default:
		return "", false
	}
}

// TermBucket tags a quote with the maturity slot it was kept for.
type TermBucket string

const (
	Near30 TermBucket = "near30"
	Next30 TermBucket = "next30"
	Near90 TermBucket = "near90"
	Next90 TermBucket = "next90"
	Other  TermBucket = "other"
)

// Term is the side of the horizon a bucket sits on.
type Term string

const (
	TermNear Term = "near"
	TermNext Term = "next"
)

// BucketFor returns the bucket for a term at the given horizon (30 or 90 days).
func BucketFor(term Term, horizon int) TermBucket {
	switch {
	case horizon == 30 && term == TermNear:
		return Near30
	case horizon == 30 && term == TermNext:
		return Next30
	case horizon == 90 && term == TermNear:
		return Near90
	case horizon == 90 && term == TermNext:
		return Next90
	default:
		return Other
	}
}

// OptionQuote is one normalized end-of-day option row.
type OptionQuote struct {
	Symbol          string
	TradeDate       time.Time
	OptionID        string
	Root            string
	CP              OptionType
	Expiry          time.Time
	DTE             int
	TermBucket      TermBucket
	Strike          float64
	Bid             float64
	Ask             float64
	Mid             float64
	IV              float64
	Delta           float64
	Gamma           float64
	Theta           float64
	Vega            float64
	Volume          int64
	OpenInterest    int64
	UnderlyingPrice float64
	Settlement      bool
}

// RawQuote is a provider row before normalization. Nullable numerics stay
// pointers so absence can be told apart from zero.
type RawQuote struct {
	OptionSymbol    string   `json:"option_symbol"`
	CallPut         string   `json:"call_put"`
	ExpirationDate  string   `json:"expiration_date"`
	DTE             *int     `json:"dte"`
	Strike          *float64 `json:"price_strike"`
	Bid             *float64 `json:"Bid"`
	Ask             *float64 `json:"Ask"`
	Price           *float64 `json:"price"`
	IV              *float64 `json:"iv"`
	Delta           *float64 `json:"delta"`
	Gamma           *float64 `json:"gamma"`
	Theta           *float64 `json:"theta"`
	Vega            *float64 `json:"vega"`
	Volume          *float64 `json:"volume"`
	OpenInterest    *float64 `json:"openinterest"`
	UnderlyingPrice *float64 `json:"underlying_price"`
	IsSettlement    *float64 `json:"is_settlement"`
}

// DTEWindow is an inclusive range of days-to-expiry.
type DTEWindow struct {
	From int
	To   int
}

func (w DTEWindow) Contains(dte int) bool {
	return dte >= w.From && dte <= w.To
}

// ChainRequest describes one provider fetch.
type ChainRequest struct {
	Symbol    string
	TradeDate time.Time
	DTE       DTEWindow
	CP        OptionType
}
