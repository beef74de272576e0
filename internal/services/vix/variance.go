package vix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Contributions computes the strike spacing and discounted contribution of
// every strip entry. The strip must be sorted by strike.
func Contributions(strip []StrikeQuote, r, t float64) ([]StripEntry, error) {
	n := len(strip)
	if n < 2 {
		return nil, fmt.Errorf("%w: strip has %d strikes", ErrDegenerateChain, n)
	}

	growth := math.Exp(r * t)
	out := make([]StripEntry, n)
	for i, q := range strip {
		var dk float64
		switch i {
		case 0:
			dk = math.Abs(strip[1].Strike - q.Strike)
		case n - 1:
			dk = math.Abs(q.Strike - strip[n-2].Strike)
		default:
			dk = math.Abs(strip[i+1].Strike-strip[i-1].Strike) / 2
		}
		out[i] = StripEntry{
			Strike:       q.Strike,
			Mid:          q.Mid,
			DeltaK:       dk,
			Contribution: dk / (q.Strike * q.Strike) * growth * q.Mid,
		}
	}
	return out, nil
}

// TermVariance returns sigma^2 = (2/T)*sum(contribution) - (F/K0 - 1)^2 / T.
func TermVariance(entries []StripEntry, forward, k0, t float64) float64 {
	c := make([]float64, len(entries))
	for i, e := range entries {
		c[i] = e.Contribution
	}
	adj := forward/k0 - 1
	return 2/t*floats.Sum(c) - adj*adj/t
}

// Blend interpolates the two term variances to the constant maturity mcm
// (all maturities in days) and returns 100 * sqrt of the annualized result.
func Blend(t1, sigma1, t2, sigma2, m1, m2, mcm float64) (float64, error) {
	if m2 == m1 {
		return 0, fmt.Errorf("%w: near and next maturity are both %.0f days", ErrInvalidMaturity, m1)
	}
	w := t1*sigma1*(m2-mcm)/(m2-m1) + t2*sigma2*(mcm-m1)/(m2-m1)
	v := w * 365 / mcm
	if v < 0 || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: negative blended variance %.6g", ErrDegenerateChain, v)
	}
	return 100 * math.Sqrt(v), nil
}
