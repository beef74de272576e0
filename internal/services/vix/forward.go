package vix

import (
	"fmt"
	"math"
	"sort"
)

// ForwardAndK0 picks the strike where call and put mids are closest, derives
// the forward price from it, and returns the largest call strike not above
// the forward. Ties resolve to the lowest strike.
func ForwardAndK0(c Chain, r, t float64) (forward, k0 float64, err error) {
	if len(c.Calls) == 0 || len(c.Puts) == 0 {
		return 0, 0, ErrEmptyChain
	}

	putMid := make(map[float64]float64, len(c.Puts))
	for _, p := range c.Puts {
		putMid[p.Strike] = p.Mid
	}

	calls := sortedByStrike(c.Calls)

	found := false
	var best, bestCall, bestPut float64
	bestDiff := math.Inf(1)
	for _, call := range calls {
		pm, ok := putMid[call.Strike]
		if !ok || call.Mid == 0 || pm == 0 {
			continue
		}
		if d := math.Abs(call.Mid - pm); d < bestDiff {
			bestDiff = d
			best, bestCall, bestPut = call.Strike, call.Mid, pm
			found = true
		}
	}
	if !found {
		return 0, 0, fmt.Errorf("%w: no strike with both call and put quotes", ErrDegenerateChain)
	}

	forward = best + math.Exp(r*t)*(bestCall-bestPut)

	haveK0 := false
	for _, call := range calls {
		if call.Strike <= forward {
			k0 = call.Strike
			haveK0 = true
		}
	}
	if !haveK0 {
		return forward, 0, fmt.Errorf("%w: no call strike at or below forward %.4f", ErrDegenerateChain, forward)
	}
	return forward, k0, nil
}

func sortedByStrike(in []StrikeQuote) []StrikeQuote {
	out := make([]StrikeQuote, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}
