package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "VolPull/internal/domain/repository"
	"VolPull/pkg/logger"
	"VolPull/pkg/util"
)

// CurveInvalidator drops cached curves after rates change.
type CurveInvalidator interface {
	Invalidate(ctx context.Context, from, to time.Time) error
}

// RateIngestParams selects the observation range to load.
type RateIngestParams struct {
	From      time.Time
	To        time.Time
	Overwrite bool
}

// RateIngestReport counts what a load did.
type RateIngestReport struct {
	Fetched  int
	Inserted int
	Skipped  int
}

// RateIngestor loads Treasury yields from a rate source into storage.
type RateIngestor struct {
	source drepo.RateSource
	repo   drepo.RateRepository
	curves CurveInvalidator
	log    *logger.Logger
	now    func() time.Time
}

func NewRateIngestor(source drepo.RateSource, repo drepo.RateRepository, curves CurveInvalidator, log *logger.Logger) *RateIngestor {
	if log == nil {
		log = logger.Nop()
	}
	return &RateIngestor{source: source, repo: repo, curves: curves, log: log, now: time.Now}
}

// Ingest fetches [From, To] (To defaults to today) and stores it. Without
// Overwrite, rows already stored for a (date, tenor) are kept and counted as
// skipped.
func (r *RateIngestor) Ingest(ctx context.Context, p RateIngestParams) (RateIngestReport, error) {
	var rep RateIngestReport
	to := p.To
	if to.IsZero() {
		to = util.DateOf(r.now())
	}
	if p.From.IsZero() {
		return rep, fmt.Errorf("rates: start date is required")
	}
	if to.Before(p.From) {
		return rep, fmt.Errorf("rates: end %s before start %s", util.FormatDate(to), util.FormatDate(p.From))
	}

	rates, err := r.source.FetchRates(ctx, p.From, to)
	if err != nil {
		return rep, fmt.Errorf("fetch rates: %w", err)
	}
	rep.Fetched = len(rates)

	n, err := r.repo.UpsertRates(ctx, rates, p.Overwrite)
	if err != nil {
		return rep, fmt.Errorf("store rates: %w", err)
	}
	rep.Inserted = n
	rep.Skipped = len(rates) - n

	if n > 0 && r.curves != nil {
		if err := r.curves.Invalidate(ctx, p.From, to); err != nil {
			r.log.Warn("rate curve cache invalidation failed", logger.Error(err))
		}
	}

	r.log.Info("rates loaded",
		logger.Date("from", p.From),
		logger.Date("to", to),
		logger.Int("fetched", rep.Fetched),
		logger.Int("inserted", rep.Inserted),
		logger.Int("skipped", rep.Skipped),
		logger.Bool("overwrite", p.Overwrite),
	)
	return rep, nil
}
