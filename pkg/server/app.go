package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/internal/usecase"
	applogger "VolPull/pkg/logger"
	"VolPull/pkg/util"
)

// Run modes.
const (
	ModeRates   = "rates"
	ModeIngest  = "ingest"
	ModeHistory = "history"
	ModeServe   = "serve"
	ModeAll     = "all"
)

// defaultRateLookback is the rate refresh window when rates.start_date is unset.
const defaultRateLookback = 30

// ErrIncomplete is returned when a batch finished with failed items.
var ErrIncomplete = errors.New("run finished with failures")

type RateJob interface {
	Ingest(ctx context.Context, p usecase.RateIngestParams) (usecase.RateIngestReport, error)
}

type IngestJob interface {
	Run(ctx context.Context, symbols []string) usecase.IngestReport
}

type HistoryJob interface {
	Run(ctx context.Context, p usecase.HistoryParams) (usecase.HistoryReport, error)
}

type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
	Err() <-chan error
}

// Jobs are the units a run mode is made of.
type Jobs struct {
	Rates   RateJob
	Ingest  IngestJob
	History HistoryJob
	HTTP    HTTPServer
}

// Settings carries the per-run parameters taken from configuration.
type Settings struct {
	Symbols        []string
	HistorySymbols []string
	IndexTypes     []models.IndexType
	RatesFrom      time.Time
	RatesTo        time.Time
	RatesOverwrite bool
	HistoryFrom    time.Time
	HistoryTo      time.Time
	ClearExisting  bool
}

// App encapsulates the application lifecycle.
type App struct {
	jobs Jobs
	set  Settings
	l    *applogger.Logger
	now  func() time.Time
}

// New creates a new App instance with all dependencies.
func New(jobs Jobs, set Settings, l *applogger.Logger) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{jobs: jobs, set: set, l: l, now: time.Now}
}

// Run executes mode and returns when it completes or ctx is cancelled.
// "all" runs rates, ingest and history in that order; "serve" blocks until
// ctx is done.
func (a *App) Run(ctx context.Context, mode string) error {
	a.l.Info("run started", applogger.String("mode", mode))
	var err error
	switch mode {
	case ModeRates:
		err = a.runRates(ctx)
	case ModeIngest:
		err = a.runIngest(ctx)
	case ModeHistory:
		err = a.runHistory(ctx)
	case ModeServe:
		err = a.serve(ctx)
	case ModeAll:
		err = a.runAll(ctx)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		a.l.Error("run finished", applogger.String("mode", mode), applogger.Error(err))
		return err
	}
	a.l.Info("run finished", applogger.String("mode", mode))
	return nil
}

func (a *App) runAll(ctx context.Context) error {
	var errs []error
	for _, step := range []func(context.Context) error{a.runRates, a.runIngest, a.runHistory} {
		if err := step(ctx); err != nil {
			if ctx.Err() != nil {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) runRates(ctx context.Context) error {
	to := a.set.RatesTo
	if to.IsZero() {
		to = util.DateOf(a.now())
	}
	from := a.set.RatesFrom
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultRateLookback)
	}
	rep, err := a.jobs.Rates.Ingest(ctx, usecase.RateIngestParams{From: from, To: to, Overwrite: a.set.RatesOverwrite})
	if err != nil {
		return fmt.Errorf("rates: %w", err)
	}
	a.l.Info("rates summary",
		applogger.Int("fetched", rep.Fetched),
		applogger.Int("inserted", rep.Inserted),
		applogger.Int("skipped", rep.Skipped),
	)
	return nil
}

func (a *App) runIngest(ctx context.Context) error {
	rep := a.jobs.Ingest.Run(ctx, a.set.Symbols)
	if err := ctx.Err(); err != nil {
		return err
	}
	var failed []string
	for _, s := range rep.Symbols {
		if s.Failed > 0 || (s.Err != nil && !s.Locked) {
			failed = append(failed, s.Symbol)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("ingest %v: %w", failed, ErrIncomplete)
	}
	return nil
}

func (a *App) runHistory(ctx context.Context) error {
	rep, err := a.jobs.History.Run(ctx, usecase.HistoryParams{
		Symbols:       a.set.HistorySymbols,
		IndexTypes:    a.set.IndexTypes,
		From:          a.set.HistoryFrom,
		To:            a.set.HistoryTo,
		ClearExisting: a.set.ClearExisting,
	})
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if rep.Failed > 0 {
		return fmt.Errorf("history: %d failed: %w", rep.Failed, ErrIncomplete)
	}
	return nil
}

func (a *App) serve(ctx context.Context) error {
	if err := a.jobs.HTTP.Start(); err != nil {
		return fmt.Errorf("http start: %w", err)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
	case serveErr = <-a.jobs.HTTP.Err():
	}

	if err := a.jobs.HTTP.Stop(context.Background()); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}
	return serveErr
}
