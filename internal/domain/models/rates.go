package models

import "time"

// RiskFreeRate is one Treasury constant-maturity observation, in percent
// bond-equivalent yield.
type RiskFreeRate struct {
	TradeDate time.Time
	Tenor     string
	BEY       float64
}

// RateCurve is the set of tenor yields observed for one date.
type RateCurve struct {
	Date   time.Time
	Yields map[string]float64
}

func (c RateCurve) Empty() bool {
	return len(c.Yields) == 0
}
