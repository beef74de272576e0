package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/internal/domain/repository"
	"VolPull/pkg/cache"
	"VolPull/pkg/logger"
	"VolPull/pkg/util"
)

// MaxLookbackDays bounds how many calendar days (the trade date included)
// LoadCurve walks back looking for a stored curve.
const MaxLookbackDays = 5

// Provider loads rate curves from storage with a cache in front.
type Provider struct {
	repo  repository.RateRepository
	cache cache.Service
	ttl   time.Duration
	log   *logger.Logger
}

func NewProvider(repo repository.RateRepository, c cache.Service, ttl time.Duration, log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Nop()
	}
	return &Provider{repo: repo, cache: c, ttl: ttl, log: log}
}

type cachedCurve struct {
	Date   string             `json:"date"`
	Yields map[string]float64 `json:"yields"`
}

// LoadCurve returns the curve stored for date, or for the closest earlier
// date within MaxLookbackDays.
func (p *Provider) LoadCurve(ctx context.Context, date time.Time) (models.RateCurve, error) {
	date = util.DateOf(date)
	key := curveKey(date)

	if p.cache != nil {
		var cc cachedCurve
		if err := p.cache.Get(ctx, key, &cc); err == nil {
			if d, ok := util.ParseDate(cc.Date); ok {
				return models.RateCurve{Date: d, Yields: cc.Yields}, nil
			}
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			p.log.Warn("rate cache read failed", logger.String("key", key), logger.Error(err))
		}
	}

	cur := date
	for i := 0; i < MaxLookbackDays; i++ {
		curve, err := p.repo.FindCurve(ctx, cur)
		if err != nil {
			return models.RateCurve{}, fmt.Errorf("find curve %s: %w", util.FormatDate(cur), err)
		}
		if !curve.Empty() {
			curve.Date = cur
			if p.cache != nil {
				cc := cachedCurve{Date: util.FormatDate(cur), Yields: curve.Yields}
				if err := p.cache.Set(ctx, key, cc, p.ttl); err != nil {
					p.log.Warn("rate cache write failed", logger.String("key", key), logger.Error(err))
				}
			}
			return curve, nil
		}
		cur = cur.AddDate(0, 0, -1)
	}
	return models.RateCurve{}, fmt.Errorf("%w within %d days before %s", ErrNoRateData, MaxLookbackDays, util.FormatDate(date))
}

// Rates returns the continuously compounded rates for two maturities on date.
func (p *Provider) Rates(ctx context.Context, date time.Time, dte1, dte2 int) (r1, r2 float64, err error) {
	curve, err := p.LoadCurve(ctx, date)
	if err != nil {
		return 0, 0, err
	}
	if r1, err = RateForMaturity(curve, float64(dte1)); err != nil {
		return 0, 0, err
	}
	if r2, err = RateForMaturity(curve, float64(dte2)); err != nil {
		return 0, 0, err
	}
	return r1, r2, nil
}

// Invalidate drops cached curves that may have been served for dates in
// [from, to], including the lookback tail after to.
func (p *Provider) Invalidate(ctx context.Context, from, to time.Time) error {
	if p.cache == nil {
		return nil
	}
	from, to = util.DateOf(from), util.DateOf(to).AddDate(0, 0, MaxLookbackDays-1)
	var keys []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		keys = append(keys, curveKey(d))
	}
	if len(keys) == 0 {
		return nil
	}
	return p.cache.Delete(ctx, keys...)
}

func curveKey(d time.Time) string {
	return cache.GenerateKeyWithParams("rates:curve", util.FormatDate(d))
}
