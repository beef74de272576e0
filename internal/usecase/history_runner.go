package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	"VolPull/internal/services/vix"
	"VolPull/pkg/logger"
	"VolPull/pkg/util"

	"github.com/google/uuid"
)

// ErrMissingOptionData marks a day whose near or next calls are not stored.
var ErrMissingOptionData = errors.New("missing option data")

// RateLookup resolves continuously compounded rates for two maturities.
type RateLookup interface {
	Rates(ctx context.Context, date time.Time, dte1, dte2 int) (r1, r2 float64, err error)
}

// HistoryParams selects what the runner computes. Zero From/To leave the
// range open.
type HistoryParams struct {
	Symbols       []string
	IndexTypes    []models.IndexType
	From          time.Time
	To            time.Time
	ClearExisting bool
}

// HistoryItem is the outcome of one (symbol, index type, date).
type HistoryItem struct {
	Symbol    string
	IndexType models.IndexType
	TradeDate time.Time
	Outcome   Outcome
	Value     float64
	Err       error
}

// HistoryReport summarizes a history run.
type HistoryReport struct {
	RunID   string
	OK      int
	Skipped int
	Failed  int
	Items   []HistoryItem
}

func (r *HistoryReport) add(it HistoryItem) {
	r.Items = append(r.Items, it)
	switch it.Outcome {
	case OutcomeOK:
		r.OK++
	case OutcomeSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// HistoryRunner computes index values for stored quote days that have none.
type HistoryRunner struct {
	quotes    drepo.QuoteRepository
	indexes   drepo.IndexValueStore
	rates     RateLookup
	publisher drepo.IndexPublisher
	metrics   drepo.Metrics
	log       *logger.Logger
}

func NewHistoryRunner(
	quotes drepo.QuoteRepository,
	indexes drepo.IndexValueStore,
	rates RateLookup,
	publisher drepo.IndexPublisher,
	metrics drepo.Metrics,
	log *logger.Logger,
) *HistoryRunner {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HistoryRunner{quotes: quotes, indexes: indexes, rates: rates, publisher: publisher, metrics: metrics, log: log}
}

// Run walks every (symbol, index type) pair. A failing day is recorded and
// the run moves on; only storage errors while listing dates or clearing
// abort the pair.
func (h *HistoryRunner) Run(ctx context.Context, p HistoryParams) (HistoryReport, error) {
	report := HistoryReport{RunID: uuid.NewString()}
	log := h.log.With(logger.String("run_id", report.RunID))

	specs := make([]drepo.IndexSpec, 0, len(p.IndexTypes))
	for _, t := range p.IndexTypes {
		spec, err := drepo.LookupIndex(t)
		if err != nil {
			return report, err
		}
		specs = append(specs, spec)
	}

	for _, symbol := range p.Symbols {
		for _, spec := range specs {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			plog := log.With(logger.String("symbol", symbol), logger.String("index_type", string(spec.Type)))

			if p.ClearExisting {
				if err := h.indexes.Delete(ctx, symbol, spec.Type); err != nil {
					return report, fmt.Errorf("clear %s %s: %w", symbol, spec.Type, err)
				}
				plog.Info("cleared stored index values")
			}

			dates, err := h.MissingDates(ctx, symbol, spec.Type, p.From, p.To)
			if err != nil {
				return report, err
			}
			plog.Info("computing missing dates", logger.Int("dates", len(dates)))

			for _, d := range dates {
				if err := ctx.Err(); err != nil {
					return report, err
				}
				it := h.RunDay(ctx, symbol, spec, d)
				report.add(it)
				fields := []logger.Field{logger.Date("trade_date", d), logger.String("outcome", string(it.Outcome))}
				switch it.Outcome {
				case OutcomeOK:
					plog.Info("index computed", append(fields, logger.Float64("value", it.Value))...)
				case OutcomeSkipped:
					plog.Warn("index skipped", append(fields, logger.Error(it.Err))...)
				default:
					plog.Error("index failed", append(fields, logger.Error(it.Err))...)
				}
			}
		}
	}

	log.Info("history run finished",
		logger.Int("ok", report.OK),
		logger.Int("skipped", report.Skipped),
		logger.Int("failed", report.Failed),
	)
	return report, nil
}

// MissingDates returns quote dates in [from, to] without a stored value.
func (h *HistoryRunner) MissingDates(ctx context.Context, symbol string, t models.IndexType, from, to time.Time) ([]time.Time, error) {
	quoteDates, err := h.quotes.TradeDates(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("quote dates %s: %w", symbol, err)
	}
	done, err := h.indexes.Dates(ctx, symbol, t)
	if err != nil {
		return nil, fmt.Errorf("index dates %s %s: %w", symbol, t, err)
	}
	have := make(map[string]struct{}, len(done))
	for _, d := range done {
		have[util.FormatDate(d)] = struct{}{}
	}

	var out []time.Time
	for _, d := range quoteDates {
		if !from.IsZero() && d.Before(util.DateOf(from)) {
			continue
		}
		if !to.IsZero() && d.After(util.DateOf(to)) {
			continue
		}
		if _, ok := have[util.FormatDate(d)]; ok {
			continue
		}
		out = append(out, util.DateOf(d))
	}
	return out, nil
}

// RunDay computes, stores and publishes one index value.
func (h *HistoryRunner) RunDay(ctx context.Context, symbol string, spec drepo.IndexSpec, d time.Time) HistoryItem {
	started := time.Now()
	it := HistoryItem{Symbol: symbol, IndexType: spec.Type, TradeDate: util.DateOf(d)}
	defer func() {
		h.metrics.RecordIndex(string(spec.Type), string(it.Outcome))
		h.metrics.RecordLatency("compute_index", time.Since(started).Seconds())
	}()

	v, err := h.compute(ctx, symbol, spec, it.TradeDate)
	if err != nil {
		it.Err = err
		it.Outcome = OutcomeFailed
		if errors.Is(err, ErrMissingOptionData) {
			it.Outcome = OutcomeSkipped
		}
		return it
	}

	if err := h.indexes.Upsert(ctx, v); err != nil {
		it.Outcome, it.Err = OutcomeFailed, fmt.Errorf("upsert: %w", err)
		return it
	}
	if h.publisher != nil {
		if err := h.publisher.PublishIndex(ctx, v); err != nil {
			h.log.Warn("publish index value failed",
				logger.String("symbol", symbol),
				logger.Date("trade_date", d),
				logger.Error(err),
			)
		}
	}
	h.metrics.RecordIndexValue(symbol, string(spec.Type), v.Value)
	it.Outcome, it.Value = OutcomeOK, v.Value
	return it
}

func (h *HistoryRunner) compute(ctx context.Context, symbol string, spec drepo.IndexSpec, d time.Time) (models.IndexValue, error) {
	quotes, err := h.quotes.FindQuotes(ctx, symbol, d, []models.TermBucket{spec.Near, spec.Next}, nil)
	if err != nil {
		return models.IndexValue{}, fmt.Errorf("load quotes: %w", err)
	}
	near, next, err := splitTerms(quotes, spec)
	if err != nil {
		return models.IndexValue{}, err
	}
	if len(near.chain.Calls) == 0 || len(next.chain.Calls) == 0 {
		return models.IndexValue{}, fmt.Errorf("%w: near %d calls, next %d calls", ErrMissingOptionData, len(near.chain.Calls), len(next.chain.Calls))
	}

	r1, r2, err := h.rates.Rates(ctx, d, near.dte, next.dte)
	if err != nil {
		return models.IndexValue{}, fmt.Errorf("rates: %w", err)
	}

	res, err := vix.Compute(vix.Inputs{
		Near: vix.Term{Chain: near.chain, Rate: r1, Days: float64(near.dte)},
		Next: vix.Term{Chain: next.chain, Rate: r2, Days: float64(next.dte)},
		MCM:  spec.MCM,
	})
	if err != nil {
		return models.IndexValue{}, fmt.Errorf("compute: %w", err)
	}

	return models.IndexValue{
		Symbol:       symbol,
		TradeDate:    d,
		IndexType:    spec.Type,
		Value:        res.Index,
		VarianceNear: res.Near.Variance,
		VarianceNext: res.Next.Variance,
		TNear:        res.Near.T,
		TNext:        res.Next.T,
		UpdatedAt:    time.Now().UTC(),
	}, nil
}

type termQuotes struct {
	chain vix.Chain
	dte   int
}

// splitTerms groups stored quotes into the near and next chains of spec.
// A bucket holding more than one expiry cannot form a single chain.
func splitTerms(quotes []models.OptionQuote, spec drepo.IndexSpec) (near, next termQuotes, err error) {
	for _, q := range quotes {
		var tq *termQuotes
		switch q.TermBucket {
		case spec.Near:
			tq = &near
		case spec.Next:
			tq = &next
		default:
			continue
		}
		if tq.dte != 0 && tq.dte != q.DTE {
			return near, next, fmt.Errorf("%w: %s holds expiries at dte %d and %d", vix.ErrDegenerateChain, q.TermBucket, tq.dte, q.DTE)
		}
		tq.dte = q.DTE
		sq := vix.StrikeQuote{Strike: q.Strike, Bid: q.Bid, Mid: q.Mid}
		if q.CP == models.Call {
			tq.chain.Calls = append(tq.chain.Calls, sq)
		} else {
			tq.chain.Puts = append(tq.chain.Puts, sq)
		}
	}
	return near, next, nil
}
