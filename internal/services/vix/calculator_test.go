package vix

import (
	"errors"
	"math"
	"testing"
)

func approx(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestForwardAndK0PicksClosestStrike(t *testing.T) {
	c := Chain{
		Calls: []StrikeQuote{{Strike: 405, Bid: 7.9, Mid: 8}, {Strike: 400, Bid: 10, Mid: 10.05}},
		Puts:  []StrikeQuote{{Strike: 400, Bid: 9.9, Mid: 10.00}, {Strike: 405, Bid: 11.9, Mid: 12}},
	}
	r, tt := 0.01, 30.0/365
	f, k0, err := ForwardAndK0(c, r, tt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantF := 400 + math.Exp(r*tt)*(10.05-10.00)
	if f != wantF {
		t.Fatalf("forward: got %v want %v", f, wantF)
	}
	if k0 != 400 {
		t.Fatalf("k0: got %v want 400", k0)
	}
}

func TestForwardAndK0TieBreaksOnLowestStrike(t *testing.T) {
	c := Chain{
		Calls: []StrikeQuote{{Strike: 110, Mid: 3}, {Strike: 100, Mid: 6}, {Strike: 105, Mid: 9}},
		Puts:  []StrikeQuote{{Strike: 100, Mid: 5}, {Strike: 105, Mid: 2}, {Strike: 110, Mid: 2}},
	}
	// |diff| is 1 at both 100 and 110; 100 wins
	f, _, err := ForwardAndK0(c, 0, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != 101 {
		t.Fatalf("forward: got %v want 101", f)
	}
}

func TestForwardAndK0IgnoresZeroMids(t *testing.T) {
	c := Chain{
		Calls: []StrikeQuote{{Strike: 100, Mid: 0}, {Strike: 105, Mid: 4}},
		Puts:  []StrikeQuote{{Strike: 100, Mid: 0.1}, {Strike: 105, Mid: 7}},
	}
	f, k0, err := ForwardAndK0(c, 0, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != 102 || k0 != 100 {
		t.Fatalf("got f=%v k0=%v", f, k0)
	}
}

func TestForwardAndK0Degenerate(t *testing.T) {
	c := Chain{
		Calls: []StrikeQuote{{Strike: 100, Mid: 0}, {Strike: 105, Mid: 1}},
		Puts:  []StrikeQuote{{Strike: 100, Mid: 2}, {Strike: 110, Mid: 3}},
	}
	if _, _, err := ForwardAndK0(c, 0, 0.1); !errors.Is(err, ErrDegenerateChain) {
		t.Fatalf("expected ErrDegenerateChain, got %v", err)
	}
	if _, _, err := ForwardAndK0(Chain{}, 0, 0.1); !errors.Is(err, ErrEmptyChain) {
		t.Fatalf("expected ErrEmptyChain, got %v", err)
	}
}

func TestBuildStripTrimsAndMergesK0(t *testing.T) {
	c := Chain{
		Puts: []StrikeQuote{
			{Strike: 80, Bid: 0.05, Mid: 0.1},
			{Strike: 85, Bid: 0, Mid: 0.05},
			{Strike: 90, Bid: 0, Mid: 0.05},
			{Strike: 95, Bid: 0.5, Mid: 0.6},
			{Strike: 100, Bid: 2, Mid: 2.2},
		},
		Calls: []StrikeQuote{
			{Strike: 100, Bid: 1.8, Mid: 2.0},
			{Strike: 105, Bid: 0.4, Mid: 0.5},
			{Strike: 110, Bid: 0, Mid: 0.05},
			{Strike: 115, Bid: 0, Mid: 0.05},
			{Strike: 120, Bid: 0.05, Mid: 0.1},
		},
	}
	strip, err := BuildStrip(c, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []StrikeQuote{
		{Strike: 95, Bid: 0.5, Mid: 0.6},
		{Strike: 100, Mid: 2.1},
		{Strike: 105, Bid: 0.4, Mid: 0.5},
	}
	if len(strip) != len(want) {
		t.Fatalf("strip: got %+v", strip)
	}
	for i := range want {
		if strip[i].Strike != want[i].Strike || !approx(strip[i].Mid, want[i].Mid, 1e-12) {
			t.Fatalf("strip[%d]: got %+v want %+v", i, strip[i], want[i])
		}
	}
}

func TestBuildStripSingleSidedK0(t *testing.T) {
	c := Chain{
		Puts:  []StrikeQuote{{Strike: 95, Bid: 1, Mid: 1.1}},
		Calls: []StrikeQuote{{Strike: 100, Bid: 2, Mid: 2.4}, {Strike: 105, Bid: 1, Mid: 1.2}},
	}
	strip, err := BuildStrip(c, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(strip) != 3 || strip[1].Strike != 100 || strip[1].Mid != 2.4 {
		t.Fatalf("unexpected strip %+v", strip)
	}

	c = Chain{
		Puts:  []StrikeQuote{{Strike: 95, Bid: 1, Mid: 1.1}},
		Calls: []StrikeQuote{{Strike: 105, Bid: 1, Mid: 1.2}},
	}
	if _, err := BuildStrip(c, 100); !errors.Is(err, ErrNoK0Option) {
		t.Fatalf("expected ErrNoK0Option, got %v", err)
	}
}

func TestContributionsSpacing(t *testing.T) {
	strip := []StrikeQuote{{Strike: 90, Mid: 1}, {Strike: 95, Mid: 1}, {Strike: 105, Mid: 1}}
	entries, err := Contributions(strip, 0, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantDK := []float64{5, 7.5, 10}
	for i, e := range entries {
		if e.DeltaK != wantDK[i] {
			t.Fatalf("deltaK[%d]: got %v want %v", i, e.DeltaK, wantDK[i])
		}
		if !approx(e.Contribution, wantDK[i]/(e.Strike*e.Strike), 1e-15) {
			t.Fatalf("contribution[%d]: got %v", i, e.Contribution)
		}
	}
	if _, err := Contributions(strip[:1], 0, 0.1); !errors.Is(err, ErrDegenerateChain) {
		t.Fatalf("expected ErrDegenerateChain for single strike, got %v", err)
	}
}

func TestComputeEndToEnd(t *testing.T) {
	in := Inputs{
		Near: Term{
			Chain: Chain{
				Calls: []StrikeQuote{{90, 10.0, 10.2}, {95, 5.6, 5.8}, {100, 2.4, 2.5}, {105, 0.7, 0.8}, {110, 0.1, 0.2}},
				Puts:  []StrikeQuote{{90, 0.2, 0.3}, {95, 0.8, 0.9}, {100, 2.5, 2.6}, {105, 5.8, 5.9}, {110, 9.9, 10.1}},
			},
			Days: 23,
		},
		Next: Term{
			Chain: Chain{
				Calls: []StrikeQuote{{90, 10.8, 11.0}, {95, 6.9, 7.1}, {100, 3.9, 4.0}, {105, 1.8, 1.9}, {110, 0.7, 0.8}},
				Puts:  []StrikeQuote{{90, 0.9, 1.0}, {95, 1.9, 2.0}, {100, 3.8, 3.9}, {105, 6.7, 6.9}, {110, 10.5, 10.7}},
			},
			Days: 37,
		},
		MCM: 30,
	}
	res, err := Compute(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(res.Near.Forward, 99.9, 1e-9) || res.Near.K0 != 95 {
		t.Fatalf("near forward/k0: %v %v", res.Near.Forward, res.Near.K0)
	}
	if !approx(res.Next.Forward, 100.1, 1e-9) || res.Next.K0 != 100 {
		t.Fatalf("next forward/k0: %v %v", res.Next.Forward, res.Next.K0)
	}
	if !approx(res.Near.Variance, 0.0763771507, 1e-9) {
		t.Fatalf("near variance: %v", res.Near.Variance)
	}
	if !approx(res.Next.Variance, 0.0965192921, 1e-9) {
		t.Fatalf("next variance: %v", res.Next.Variance)
	}
	if !approx(res.Index, 29.7990, 5e-5) {
		t.Fatalf("index: got %.6f want 29.7990", res.Index)
	}

	again, err := Compute(in)
	if err != nil || again.Index != res.Index {
		t.Fatalf("not deterministic: %v vs %v (%v)", again.Index, res.Index, err)
	}
}

func TestComputeRejectsBadMaturities(t *testing.T) {
	if _, err := Compute(Inputs{MCM: 30}); !errors.Is(err, ErrInvalidMaturity) {
		t.Fatalf("expected ErrInvalidMaturity, got %v", err)
	}
	if _, err := Blend(0.1, 0.04, 0.1, 0.04, 30, 30, 30); !errors.Is(err, ErrInvalidMaturity) {
		t.Fatalf("expected ErrInvalidMaturity, got %v", err)
	}
}
