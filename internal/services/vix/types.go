package vix

import "errors"

var (
	// ErrDegenerateChain is returned when no strike has both a call and a put
	// mid quote, or when the strip cannot be integrated.
	ErrDegenerateChain = errors.New("degenerate chain")
	// ErrNoK0Option is returned when neither call nor put at K0 survives trimming.
	ErrNoK0Option = errors.New("no valid K0 option")
	// ErrEmptyChain is returned when a term has no calls or no puts at all.
	ErrEmptyChain = errors.New("empty option chain")
	// ErrInvalidMaturity is returned for non-positive or coincident maturities.
	ErrInvalidMaturity = errors.New("invalid maturity")
)

// StrikeQuote is the slice of an option quote the calculator needs.
type StrikeQuote struct {
	Strike float64
	Bid    float64
	Mid    float64
}

// Chain holds one expiry's calls and puts.
type Chain struct {
	Calls []StrikeQuote
	Puts  []StrikeQuote
}

// Term is a chain plus its discount rate and days to expiry.
type Term struct {
	Chain
	Rate float64
	Days float64
}

// Inputs is everything needed to compute one index value.
type Inputs struct {
	Near Term
	Next Term
	// MCM is the constant maturity in days (30 for VIX, 90 for VIX3M).
	MCM float64
}

// StripEntry is one strike of the contributing strip.
type StripEntry struct {
	Strike       float64
	Mid          float64
	DeltaK       float64
	Contribution float64
}

// TermResult holds the intermediate values of one expiry.
type TermResult struct {
	T        float64
	Forward  float64
	K0       float64
	Variance float64
	Strip    []StripEntry
}

// Result is the computed index together with both term breakdowns.
type Result struct {
	Index float64
	Near  TermResult
	Next  TermResult
}
