package vix

import "fmt"

// Compute runs the full two-term replication. It is pure and safe for
// concurrent use.
func Compute(in Inputs) (Result, error) {
	if in.Near.Days <= 0 || in.Next.Days <= 0 || in.MCM <= 0 {
		return Result{}, fmt.Errorf("%w: near=%v next=%v mcm=%v", ErrInvalidMaturity, in.Near.Days, in.Next.Days, in.MCM)
	}

	near, err := computeTerm(in.Near)
	if err != nil {
		return Result{}, fmt.Errorf("near term: %w", err)
	}
	next, err := computeTerm(in.Next)
	if err != nil {
		return Result{}, fmt.Errorf("next term: %w", err)
	}

	idx, err := Blend(near.T, near.Variance, next.T, next.Variance, in.Near.Days, in.Next.Days, in.MCM)
	if err != nil {
		return Result{}, err
	}
	return Result{Index: idx, Near: near, Next: next}, nil
}

func computeTerm(term Term) (TermResult, error) {
	t := term.Days / 365
	forward, k0, err := ForwardAndK0(term.Chain, term.Rate, t)
	if err != nil {
		return TermResult{}, err
	}
	strip, err := BuildStrip(term.Chain, k0)
	if err != nil {
		return TermResult{}, err
	}
	entries, err := Contributions(strip, term.Rate, t)
	if err != nil {
		return TermResult{}, err
	}
	return TermResult{
		T:        t,
		Forward:  forward,
		K0:       k0,
		Variance: TermVariance(entries, forward, k0, t),
		Strip:    entries,
	}, nil
}
