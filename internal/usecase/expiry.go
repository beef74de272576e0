package usecase

import (
	"time"

	"VolPull/internal/domain/models"
)

// legGroup is one (horizon, term) slot of a trading day. Its target expiry is
// the Friday inside [lo, hi] days from the trade date; backoff never goes
// below floor. The near window ends at horizon-1 because an expiry exactly at
// the horizon classifies as neither near nor next.
type legGroup struct {
	horizon int
	term    models.Term
	lo, hi  int
	floor   int
}

func legGroupsFor(horizons []int) []legGroup {
	groups := make([]legGroup, 0, 2*len(horizons))
	for _, h := range horizons {
		groups = append(groups,
			legGroup{horizon: h, term: models.TermNear, lo: h - 7, hi: h - 1, floor: 1},
			legGroup{horizon: h, term: models.TermNext, lo: h + 1, hi: h + 7, floor: h + 1},
		)
	}
	return groups
}

func (g legGroup) bucket() models.TermBucket {
	return models.BucketFor(g.term, g.horizon)
}

// targets lists the dte values tried for this group, nearest Friday first,
// then one day earlier per backoff step.
func (g legGroup) targets(tradeDate time.Time, maxBackoff int) []int {
	first := fridayWithin(tradeDate, g.lo, g.hi)
	out := []int{first}
	for i := 1; i <= maxBackoff; i++ {
		t := first - i
		if t < g.floor {
			break
		}
		out = append(out, t)
	}
	return out
}

// window covers every dte the group may have been stored under.
func (g legGroup) window(tradeDate time.Time, maxBackoff int) models.DTEWindow {
	ts := g.targets(tradeDate, maxBackoff)
	return models.DTEWindow{From: ts[len(ts)-1], To: ts[0]}
}

// fridayWithin returns the day offset of the Friday lying lo..hi days after
// tradeDate. A seven-day span always holds exactly one; hi is returned for
// shorter spans without a Friday.
func fridayWithin(tradeDate time.Time, lo, hi int) int {
	for d := lo; d <= hi; d++ {
		if tradeDate.AddDate(0, 0, d).Weekday() == time.Friday {
			return d
		}
	}
	return hi
}
