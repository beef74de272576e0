package ivol

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	"VolPull/internal/service/ratelimit"
	xhttp "VolPull/pkg/http"
	"VolPull/pkg/logger"
	"VolPull/pkg/util"

	"github.com/valyala/fastjson"
)

var (
	// ErrRetriesExhausted is returned once every retry attempt has failed.
	ErrRetriesExhausted = errors.New("provider retries exhausted")
	// ErrJobTimeout is returned when a deferred job never produced a download.
	ErrJobTimeout = errors.New("provider job timed out")
	// ErrNoDetails is returned for a response with neither rows nor a job URL.
	ErrNoDetails = errors.New("provider returned no data and no details url")
)

// Config holds provider endpoint and pacing settings.
type Config struct {
	BaseURL           string
	ChainPath         string
	APIKey            string
	Timeout           time.Duration
	DownloadTimeout   time.Duration
	MaxRetries        int
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	PollInterval      time.Duration
	PollFactor        float64
	PollMaxInterval   time.Duration
	PollTimeout       time.Duration
	RequestsPerSecond float64
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option configures Client.
type Option func(*Client)

// WithSleeper replaces the backoff and poll sleep.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m drepo.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client implements OptionProvider against the end-of-day options endpoint.
type Client struct {
	cfg     Config
	http    *xhttp.Client
	sem     *ratelimit.Semaphore
	limiter *ratelimit.Limiter
	sleep   Sleeper
	metrics drepo.Metrics
	log     *logger.Logger
}

// New builds a provider client. sem bounds in-flight fetches across every
// caller sharing it.
func New(cfg Config, sem *ratelimit.Semaphore, limiter *ratelimit.Limiter, opts ...Option) *Client {
	if cfg.PollFactor < 1 {
		cfg.PollFactor = 1
	}
	c := &Client{
		cfg:     cfg,
		http:    xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		sem:     sem,
		limiter: limiter,
		sleep:   sleepCtx,
		metrics: drepo.NopMetrics{},
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchChain returns the raw rows for one request, following a deferred job
// to its download when the provider does not answer inline. An empty result
// means nothing is listed for the window.
func (c *Client) FetchChain(ctx context.Context, req models.ChainRequest) ([]models.RawQuote, error) {
	if c.sem != nil {
		if err := c.sem.Acquire(ctx); err != nil {
			return nil, err
		}
		defer c.sem.Release()
	}

	start := time.Now()
	rows, err := c.fetch(ctx, req)
	c.metrics.RecordLatency("provider_fetch", time.Since(start).Seconds())
	switch {
	case err != nil:
		c.metrics.RecordFetch("error")
	case len(rows) == 0:
		c.metrics.RecordFetch("empty")
	default:
		c.metrics.RecordFetch("ok")
	}
	return rows, err
}

func (c *Client) fetch(ctx context.Context, req models.ChainRequest) ([]models.RawQuote, error) {
	body, err := c.getWithRetry(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.cfg.BaseURL + c.cfg.ChainPath,
		QueryParams: chainParams(req, c.cfg.APIKey),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s %s: %w", req.Symbol, util.FormatDate(req.TradeDate), req.CP, err)
	}

	var p fastjson.Parser
	v, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse provider response: %w", err)
	}

	if data := v.GetArray("data"); len(data) > 0 {
		rows := make([]models.RawQuote, 0, len(data))
		for _, item := range data {
			rows = append(rows, rowFromJSON(item))
		}
		return rows, nil
	}

	detailURL := string(v.GetStringBytes("status", "urlForDetails"))
	if detailURL == "" {
		if v.Exists("data") {
			return nil, nil
		}
		return nil, ErrNoDetails
	}

	c.log.Debug("provider job deferred",
		logger.String("symbol", req.Symbol),
		logger.Date("trade_date", req.TradeDate),
		logger.String("cp", string(req.CP)),
	)
	downloadURL, err := c.awaitDownload(ctx, detailURL)
	if err != nil {
		return nil, err
	}
	return c.download(ctx, downloadURL)
}

func chainParams(req models.ChainRequest, apiKey string) map[string][]string {
	return map[string][]string{
		"symbol":    {req.Symbol},
		"tradeDate": {util.FormatDate(req.TradeDate)},
		"dteFrom":   {strconv.Itoa(req.DTE.From)},
		"dteTo":     {strconv.Itoa(req.DTE.To)},
		"cp":        {string(req.CP)},
		"deltaFrom": {"-100"},
		"deltaTo":   {"100"},
		"apiKey":    {apiKey},
	}
}

// getWithRetry retries throttling, server errors and transport failures with
// a doubling, capped backoff. It makes at most MaxRetries+1 requests.
func (c *Client) getWithRetry(ctx context.Context, opts *xhttp.RequestOptions) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			burst := math.Max(1, c.cfg.RequestsPerSecond)
			if err := c.limiter.Wait(ctx, "provider", burst, c.cfg.RequestsPerSecond); err != nil {
				return nil, err
			}
		}

		body, err := c.http.SendAndRead(ctx, opts)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		reason := "network"
		var se *xhttp.StatusError
		if errors.As(err, &se) {
			if !se.Retryable() {
				return nil, err
			}
			reason = strconv.Itoa(se.StatusCode)
		}
		lastErr = err
		c.metrics.RecordRetry(reason)

		if attempt == c.cfg.MaxRetries {
			break
		}
		wait := c.backoff(attempt)
		c.log.Warn("provider request failed, backing off",
			logger.String("reason", reason),
			logger.Int("attempt", attempt+1),
			logger.Duration("wait_ms", wait),
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrRetriesExhausted, c.cfg.MaxRetries+1, lastErr)
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.cfg.BackoffBase
	for i := 0; i < attempt; i++ {
		d *= 2
		if c.cfg.BackoffMax > 0 && d >= c.cfg.BackoffMax {
			return c.cfg.BackoffMax
		}
	}
	if c.cfg.BackoffMax > 0 && d > c.cfg.BackoffMax {
		return c.cfg.BackoffMax
	}
	return d
}

// awaitDownload polls the job details until a download URL shows up.
func (c *Client) awaitDownload(ctx context.Context, detailURL string) (string, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.cfg.PollTimeout)
	defer cancel()

	timedOut := func(err error) error {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s: %s", ErrJobTimeout, c.cfg.PollTimeout, detailURL)
		}
		return err
	}

	interval := c.cfg.PollInterval
	for {
		body, err := c.getWithRetry(pollCtx, &xhttp.RequestOptions{Method: xhttp.MethodGet, URL: detailURL})
		if err != nil {
			return "", timedOut(err)
		}

		var p fastjson.Parser
		if v, perr := p.ParseBytes(body); perr == nil {
			if u := string(v.GetStringBytes("0", "data", "0", "urlForDownload")); u != "" {
				return u, nil
			}
		}

		if err := c.sleep(pollCtx, interval); err != nil {
			return "", timedOut(err)
		}
		interval = time.Duration(float64(interval) * c.cfg.PollFactor)
		if c.cfg.PollMaxInterval > 0 && interval > c.cfg.PollMaxInterval {
			interval = c.cfg.PollMaxInterval
		}
	}
}

var _ drepo.OptionProvider = (*Client)(nil)
