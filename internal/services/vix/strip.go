package vix

import "sort"

// BuildStrip assembles the out-of-the-money strip around k0: puts at or
// below k0, calls at or above, both trimmed at the first pair of consecutive
// zero bids moving away from k0, with the two k0 quotes merged into one.
func BuildStrip(c Chain, k0 float64) ([]StrikeQuote, error) {
	var puts, calls []StrikeQuote
	for _, p := range sortedByStrike(c.Puts) {
		if p.Strike <= k0 {
			puts = append(puts, p)
		}
	}
	for _, q := range sortedByStrike(c.Calls) {
		if q.Strike >= k0 {
			calls = append(calls, q)
		}
	}

	puts = trimPuts(puts)
	calls = trimCalls(calls)

	var (
		k0Call, k0Put     float64
		haveCall, havePut bool
		strip             = make([]StrikeQuote, 0, len(puts)+len(calls))
	)
	for _, p := range puts {
		if p.Strike == k0 {
			k0Put, havePut = p.Mid, true
			continue
		}
		strip = append(strip, p)
	}
	for _, q := range calls {
		if q.Strike == k0 {
			k0Call, haveCall = q.Mid, true
			continue
		}
		strip = append(strip, q)
	}

	var k0Mid float64
	switch {
	case haveCall && havePut:
		k0Mid = (k0Call + k0Put) / 2
	case haveCall:
		k0Mid = k0Call
	case havePut:
		k0Mid = k0Put
	default:
		return nil, ErrNoK0Option
	}
	strip = append(strip, StrikeQuote{Strike: k0, Mid: k0Mid})

	sort.SliceStable(strip, func(i, j int) bool { return strip[i].Strike < strip[j].Strike })
	return strip, nil
}

// trimPuts expects ascending strikes with k0 last and walks toward lower strikes.
func trimPuts(puts []StrikeQuote) []StrikeQuote {
	for i := len(puts) - 2; i > 0; i-- {
		if puts[i].Bid == 0 && puts[i-1].Bid == 0 {
			return puts[i+1:]
		}
	}
	return puts
}

// trimCalls expects ascending strikes with k0 first and walks toward higher strikes.
func trimCalls(calls []StrikeQuote) []StrikeQuote {
	for i := 1; i < len(calls)-1; i++ {
		if calls[i].Bid == 0 && calls[i+1].Bid == 0 {
			return calls[:i]
		}
	}
	return calls
}
