package rates

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"VolPull/internal/domain/models"

	"gonum.org/v1/gonum/interp"
)

var (
	// ErrNoRateData is returned when no curve is stored inside the lookback window.
	ErrNoRateData = errors.New("no rate data")
	// ErrEmptyCurve is returned when a curve has no usable tenor.
	ErrEmptyCurve = errors.New("empty rate curve")
)

// TenorDays maps Treasury constant-maturity tenor labels to day counts.
var TenorDays = map[string]int{
	"1M":  30,
	"2M":  60,
	"3M":  91,
	"6M":  182,
	"1Y":  365,
	"2Y":  730,
	"3Y":  1095,
	"5Y":  1825,
	"7Y":  2555,
	"10Y": 3650,
	"20Y": 7300,
	"30Y": 10950,
}

// knots returns the (days, yield) pairs of the curve sorted by days, with
// unmapped tenors, non-finite yields and repeated day counts removed.
func knots(curve models.RateCurve) (xs, ys []float64) {
	type knot struct {
		tenor string
		days  int
		yield float64
	}
	ks := make([]knot, 0, len(curve.Yields))
	for tenor, y := range curve.Yields {
		d, ok := TenorDays[tenor]
		if !ok || math.IsNaN(y) || math.IsInf(y, 0) {
			continue
		}
		ks = append(ks, knot{tenor: tenor, days: d, yield: y})
	}
	sort.Slice(ks, func(i, j int) bool {
		if ks[i].days != ks[j].days {
			return ks[i].days < ks[j].days
		}
		return ks[i].tenor < ks[j].tenor
	})
	for i, k := range ks {
		if i > 0 && k.days == ks[i-1].days {
			continue
		}
		xs = append(xs, float64(k.days))
		ys = append(ys, k.yield)
	}
	return xs, ys
}

// InterpolateYield evaluates a natural cubic spline through the curve at dte.
// Outside the knot range the nearest end yield is returned; between two knots
// the spline value is clamped to the bracketing yields.
func InterpolateYield(curve models.RateCurve, dte float64) (float64, error) {
	xs, ys := knots(curve)
	switch len(xs) {
	case 0:
		return 0, ErrEmptyCurve
	case 1:
		return ys[0], nil
	}

	if dte <= xs[0] {
		return ys[0], nil
	}
	last := len(xs) - 1
	if dte >= xs[last] {
		return ys[last], nil
	}

	var spline interp.NaturalCubic
	if err := spline.Fit(xs, ys); err != nil {
		return 0, fmt.Errorf("fit spline: %w", err)
	}
	v := spline.Predict(dte)

	i := sort.SearchFloat64s(xs, dte) - 1
	lo, hi := math.Min(ys[i], ys[i+1]), math.Max(ys[i], ys[i+1])
	return math.Min(math.Max(v, lo), hi), nil
}

// BEYToContinuous converts a bond-equivalent yield in percent to a
// continuously compounded rate.
func BEYToContinuous(bey float64) float64 {
	apy := math.Pow(1+bey/200, 2) - 1
	return math.Log(1 + apy)
}

// RateForMaturity interpolates the curve at dte and converts the yield to a
// continuously compounded rate.
func RateForMaturity(curve models.RateCurve, dte float64) (float64, error) {
	bey, err := InterpolateYield(curve, dte)
	if err != nil {
		return 0, err
	}
	return BEYToContinuous(bey), nil
}
