package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	"VolPull/internal/services/normalize"
	"VolPull/pkg/cache"
	"VolPull/pkg/logger"
	"VolPull/pkg/util"

	"github.com/google/uuid"
)

// ErrNoStartDate is returned for a symbol with no progress and no configured start.
var ErrNoStartDate = errors.New("no start date for symbol without progress")

// IngestConfig tunes the scheduler.
type IngestConfig struct {
	StartDate        time.Time
	EndDate          time.Time
	Workers          int
	Horizons         []int
	MaxExpiryBackoff int
	LockTTL          time.Duration
}

// LegResult is the outcome of one (group, option type) fetch.
type LegResult struct {
	Bucket   models.TermBucket
	CP       models.OptionType
	Target   int
	Outcome  Outcome
	Inserted int
	// Existing is set when the leg was already stored and no fetch was made.
	Existing bool
	Err      error
}

// DayResult is the outcome of one (symbol, trading day).
type DayResult struct {
	Symbol  string
	Date    time.Time
	Outcome Outcome
	Legs    []LegResult
	Err     error
}

// SymbolReport summarizes one symbol's run.
type SymbolReport struct {
	Symbol  string
	OK      int
	Skipped int
	Failed  int
	// Locked is set when another process held the symbol's ingestion lock.
	Locked bool
	Err    error
}

// IngestReport summarizes a whole ingestion run.
type IngestReport struct {
	RunID   string
	Symbols []SymbolReport
}

// IngestScheduler drives per-symbol, per-day ingestion of option legs.
type IngestScheduler struct {
	provider drepo.OptionProvider
	quotes   drepo.QuoteRepository
	progress drepo.ProgressRepository
	cal      drepo.Calendar
	norm     *normalize.Normalizer
	locks    cache.Service
	metrics  drepo.Metrics
	log      *logger.Logger
	cfg      IngestConfig
	now      func() time.Time
}

func NewIngestScheduler(
	provider drepo.OptionProvider,
	quotes drepo.QuoteRepository,
	progress drepo.ProgressRepository,
	cal drepo.Calendar,
	norm *normalize.Normalizer,
	locks cache.Service,
	metrics drepo.Metrics,
	log *logger.Logger,
	cfg IngestConfig,
) *IngestScheduler {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = []int{30, 90}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 6 * time.Hour
	}
	return &IngestScheduler{
		provider: provider,
		quotes:   quotes,
		progress: progress,
		cal:      cal,
		norm:     norm,
		locks:    locks,
		metrics:  metrics,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run ingests symbols concurrently on a bounded worker pool. Days within one
// symbol are processed in calendar order.
func (s *IngestScheduler) Run(ctx context.Context, symbols []string) IngestReport {
	report := IngestReport{RunID: uuid.NewString()}
	log := s.log.With(logger.String("run_id", report.RunID))
	log.Info("ingestion started", logger.Strings("symbols", symbols), logger.Int("workers", s.cfg.Workers))

	jobs := make(chan string)
	results := make(chan SymbolReport, len(symbols))
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				results <- s.IngestSymbol(ctx, sym)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, sym := range symbols {
			select {
			case jobs <- sym:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() { wg.Wait(); close(results) }()

	var ok, skipped, failed int
	for r := range results {
		report.Symbols = append(report.Symbols, r)
		ok += r.OK
		skipped += r.Skipped
		failed += r.Failed
	}
	log.Info("ingestion finished",
		logger.Int("symbols", len(report.Symbols)),
		logger.Int("ok", ok),
		logger.Int("skipped", skipped),
		logger.Int("failed", failed),
	)
	return report
}

// IngestSymbol advances one symbol from its progress cursor to the end date,
// stopping at the first day that cannot be completed.
func (s *IngestScheduler) IngestSymbol(ctx context.Context, symbol string) SymbolReport {
	rep := SymbolReport{Symbol: symbol}
	log := s.log.With(logger.String("symbol", symbol))

	if s.locks != nil {
		key := cache.GenerateKeyWithParams("ingest:lock", symbol)
		got, err := s.locks.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			rep.Err = fmt.Errorf("acquire lock: %w", err)
			log.Error("ingestion lock failed", logger.Error(err))
			return rep
		}
		if !got {
			rep.Locked = true
			log.Warn("symbol is being ingested elsewhere, skipping")
			return rep
		}
		defer func() {
			if err := s.locks.Unlock(context.Background(), key); err != nil {
				log.Warn("release ingestion lock", logger.Error(err))
			}
		}()
	}

	start, err := s.startDate(ctx, symbol)
	if err != nil {
		rep.Err = err
		log.Error("cannot resolve start date", logger.Error(err))
		return rep
	}
	end := util.DateOf(s.now())
	if !s.cfg.EndDate.IsZero() && s.cfg.EndDate.Before(end) {
		end = util.DateOf(s.cfg.EndDate)
	}

	d := start
	if !s.cal.IsTradingDay(d) {
		d = s.cal.NextTradingDay(d)
	}
	for ; !d.After(end); d = s.cal.NextTradingDay(d) {
		if ctx.Err() != nil {
			rep.Err = ctx.Err()
			return rep
		}
		res := s.IngestDay(ctx, symbol, d)
		switch res.Outcome {
		case OutcomeOK:
			rep.OK++
		case OutcomeSkipped:
			rep.Skipped++
		case OutcomeFailed:
			rep.Failed++
			rep.Err = res.Err
			log.Error("day not completable this run, stopping symbol",
				logger.Date("trade_date", d),
				logger.Error(res.Err),
			)
			return rep
		}
	}
	log.Info("symbol up to date",
		logger.Date("through", end),
		logger.Int("ok", rep.OK),
		logger.Int("skipped", rep.Skipped),
	)
	return rep
}

func (s *IngestScheduler) startDate(ctx context.Context, symbol string) (time.Time, error) {
	last, ok, err := s.progress.LastCompletedDate(ctx, symbol)
	if err != nil {
		return time.Time{}, fmt.Errorf("last completed date: %w", err)
	}
	if ok {
		return util.DateOf(last).AddDate(0, 0, 1), nil
	}
	if s.cfg.StartDate.IsZero() {
		return time.Time{}, ErrNoStartDate
	}
	return util.DateOf(s.cfg.StartDate), nil
}

// IngestDay fetches every leg of one trading day. The day is marked complete
// only when no leg failed; a skipped leg group still completes the day.
func (s *IngestScheduler) IngestDay(ctx context.Context, symbol string, d time.Time) DayResult {
	started := time.Now()
	d = util.DateOf(d)
	res := DayResult{Symbol: symbol, Date: d}
	groups := legGroupsFor(s.cfg.Horizons)

	legs := make([][]LegResult, len(groups))
	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g legGroup) {
			defer wg.Done()
			legs[i] = s.ingestGroup(ctx, symbol, d, g)
		}(i, g)
	}
	wg.Wait()

	var anyOK, anySkipped bool
	for _, group := range legs {
		for _, l := range group {
			res.Legs = append(res.Legs, l)
			s.metrics.RecordLeg(string(l.Outcome))
			switch l.Outcome {
			case OutcomeOK:
				anyOK = true
			case OutcomeSkipped:
				anySkipped = true
			case OutcomeFailed:
				if res.Err == nil {
					res.Err = l.Err
				}
			}
		}
	}

	defer func() {
		s.metrics.RecordDay(string(res.Outcome))
		s.metrics.RecordLatency("ingest_day", time.Since(started).Seconds())
	}()

	if res.Err != nil {
		res.Outcome = OutcomeFailed
		return res
	}

	if anyOK {
		if err := s.advanceSymbol(ctx, symbol, d); err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			return res
		}
	}
	snap := models.DailySnapshot{Symbol: symbol, TradeDate: d, Completed: true, Skipped: anySkipped, UpdatedAt: time.Now().UTC()}
	if err := s.progress.MarkDay(ctx, snap); err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("mark day: %w", err)
		return res
	}

	res.Outcome = OutcomeOK
	if !anyOK {
		res.Outcome = OutcomeSkipped
	}
	s.log.Info("day ingested",
		logger.String("symbol", symbol),
		logger.Date("trade_date", d),
		logger.String("outcome", string(res.Outcome)),
		logger.Bool("partial", anySkipped),
	)
	return res
}

// ingestGroup fetches the put leg along the group's expiry backoff, then the
// call leg at the expiry the put resolved to, so both legs of a bucket share
// one dte. When the put leg finds no listing the call leg is skipped without
// a fetch; a failed put leg ends the group.
func (s *IngestScheduler) ingestGroup(ctx context.Context, symbol string, d time.Time, g legGroup) []LegResult {
	put := s.ingestLeg(ctx, symbol, d, g, models.Put, g.window(d, s.cfg.MaxExpiryBackoff), g.targets(d, s.cfg.MaxExpiryBackoff))
	switch put.Outcome {
	case OutcomeSkipped:
		call := LegResult{Bucket: g.bucket(), CP: models.Call, Outcome: OutcomeSkipped}
		return []LegResult{put, call}
	case OutcomeFailed:
		return []LegResult{put}
	}
	at := models.DTEWindow{From: put.Target, To: put.Target}
	call := s.ingestLeg(ctx, symbol, d, g, models.Call, at, []int{put.Target})
	return []LegResult{put, call}
}

// ingestLeg stores one leg unless a quote of cp inside window already exists,
// trying each target dte in order until one has listings.
func (s *IngestScheduler) ingestLeg(ctx context.Context, symbol string, d time.Time, g legGroup, cp models.OptionType, window models.DTEWindow, targets []int) LegResult {
	res := LegResult{Bucket: g.bucket(), CP: cp}
	log := s.log.With(
		logger.String("symbol", symbol),
		logger.Date("trade_date", d),
		logger.String("bucket", string(res.Bucket)),
		logger.String("cp", string(cp)),
	)

	exists, err := s.quotes.ExistsLeg(ctx, symbol, d, cp, window)
	if err != nil {
		res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("exists leg: %w", err)
		return res
	}
	if exists {
		target, err := s.storedTarget(ctx, symbol, d, res.Bucket, cp)
		if err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			return res
		}
		res.Outcome, res.Existing, res.Target = OutcomeOK, true, target
		log.Debug("leg already stored", logger.Int("target_dte", target))
		return res
	}

	for _, target := range targets {
		res.Target = target
		rows, err := s.provider.FetchChain(ctx, models.ChainRequest{
			Symbol:    symbol,
			TradeDate: d,
			DTE:       models.DTEWindow{From: target, To: target},
			CP:        cp,
		})
		if err != nil {
			res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("fetch %s %s dte %d: %w", res.Bucket, cp, target, err)
			log.Error("leg fetch failed", logger.Int("target_dte", target), logger.Error(err))
			return res
		}

		kept := s.keep(symbol, d, rows, g, cp)
		if len(kept) == 0 {
			log.Debug("no listed options", logger.Int("target_dte", target))
			continue
		}
		if err := s.quotes.InsertQuotes(ctx, kept); err != nil {
			res.Outcome, res.Err = OutcomeFailed, fmt.Errorf("insert quotes: %w", err)
			return res
		}
		res.Outcome, res.Inserted = OutcomeOK, len(kept)
		log.Debug("leg stored", logger.Int("target_dte", target), logger.Int("quotes", len(kept)))
		return res
	}

	res.Outcome = OutcomeSkipped
	log.Info("no listings at any target expiry, leg group skipped", logger.Ints("targets", targets))
	return res
}

// storedTarget returns the dte of the quotes already stored for one leg.
func (s *IngestScheduler) storedTarget(ctx context.Context, symbol string, d time.Time, bucket models.TermBucket, cp models.OptionType) (int, error) {
	quotes, err := s.quotes.FindQuotes(ctx, symbol, d, []models.TermBucket{bucket}, []models.OptionType{cp})
	if err != nil {
		return 0, fmt.Errorf("load stored leg: %w", err)
	}
	if len(quotes) == 0 {
		return 0, fmt.Errorf("stored %s %s leg not found", bucket, cp)
	}
	return quotes[0].DTE, nil
}

// keep normalizes rows for the group's horizon and returns the quotes that
// landed in the group's bucket with the requested option type.
func (s *IngestScheduler) keep(symbol string, d time.Time, rows []models.RawQuote, g legGroup, cp models.OptionType) []models.OptionQuote {
	if len(rows) == 0 {
		return nil
	}
	norm := s.norm.Normalize(symbol, d, rows, g.horizon)
	want := g.bucket()
	out := norm.Quotes[:0]
	for _, q := range norm.Quotes {
		if q.TermBucket == want && q.CP == cp {
			out = append(out, q)
		}
	}
	return out
}

func (s *IngestScheduler) advanceSymbol(ctx context.Context, symbol string, d time.Time) error {
	sym, ok, err := s.progress.GetSymbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("get symbol: %w", err)
	}
	if !ok {
		sym = models.Symbol{Symbol: symbol, Active: true}
	}
	if sym.FirstOptionDate.IsZero() || d.Before(sym.FirstOptionDate) {
		sym.FirstOptionDate = d
	}
	if d.After(sym.LastOptionDate) {
		sym.LastOptionDate = d
	}
	if err := s.progress.SaveSymbol(ctx, sym); err != nil {
		return fmt.Errorf("save symbol: %w", err)
	}
	return nil
}
