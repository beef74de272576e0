package ivol

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/internal/service/ratelimit"

	"github.com/klauspost/compress/gzip"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func testConfig(base string) Config {
	return Config{
		BaseURL:         base,
		ChainPath:       "/equities/eod/stock-opts-by-param",
		APIKey:          "key",
		Timeout:         5 * time.Second,
		DownloadTimeout: 5 * time.Second,
		MaxRetries:      4,
		BackoffBase:     time.Second,
		BackoffMax:      5 * time.Second,
		PollInterval:    500 * time.Millisecond,
		PollFactor:      1.3,
		PollMaxInterval: time.Second,
		PollTimeout:     5 * time.Second,
	}
}

func testRequest() models.ChainRequest {
	return models.ChainRequest{
		Symbol:    "SPY",
		TradeDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		DTE:       models.DTEWindow{From: 24, To: 30},
		CP:        models.Put,
	}
}

func TestFetchChainInline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") != "SPY" || q.Get("tradeDate") != "2024-01-02" || q.Get("cp") != "P" {
			t.Errorf("unexpected query %v", q)
		}
		if q.Get("dteFrom") != "24" || q.Get("dteTo") != "30" || q.Get("deltaFrom") != "-100" || q.Get("deltaTo") != "100" || q.Get("apiKey") != "key" {
			t.Errorf("unexpected window params %v", q)
		}
		_, _ = w.Write([]byte(`{"status":{"code":"COMPLETE"},"data":[
			{"option_symbol":"SPY   240126P00470000","call_put":"P","expiration_date":"2024-01-26","dte":24,"price_strike":470,"Bid":1.5,"Ask":1.7,"price":1.6,"iv":0.14,"delta":-0.3,"volume":"1200","openinterest":null}
		]}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), ratelimit.NewSemaphore(5), nil)
	rows, err := c.FetchChain(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.CallPut != "P" || *r.Strike != 470 || *r.DTE != 24 || *r.Bid != 1.5 || *r.Volume != 1200 {
		t.Fatalf("unexpected row %+v", r)
	}
	if r.OpenInterest != nil || r.Gamma != nil {
		t.Fatalf("null and absent fields should stay nil")
	}
}

func TestFetchChainEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":{"code":"COMPLETE"},"data":[]}`))
	}))
	defer srv.Close()

	rows, err := New(testConfig(srv.URL), nil, nil).FetchChain(context.Background(), testRequest())
	if err != nil || len(rows) != 0 {
		t.Fatalf("expected empty result, got %d rows err=%v", len(rows), err)
	}
}

func gzipCSV(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(body)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func TestFetchChainDeferredJob(t *testing.T) {
	var polls int32
	csvBody := "option_symbol,call_put,expiration_date,dte,price_strike,Bid,Ask,price,iv\n" +
		"SPY   240126P00470000,P,2024-01-26,24,470,1.5,1.7,1.6,0.14\n" +
		"SPY   240126P00475000,P,2024-01-26,24,475,,,2.1,\n"
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/equities/eod/stock-opts-by-param":
			fmt.Fprintf(w, `{"status":{"code":"PENDING","urlForDetails":"%s/details/1"},"data":[]}`, srv.URL)
		case "/details/1":
			if atomic.AddInt32(&polls, 1) < 4 {
				_, _ = w.Write([]byte(`[{"data":[{"urlForDownload":"","fileSize":0}]}]`))
				return
			}
			fmt.Fprintf(w, `[{"data":[{"urlForDownload":"%s/download/1.csv.gz","fileSize":123}]}]`, srv.URL)
		case "/download/1.csv.gz":
			_, _ = w.Write(gzipCSV(t, csvBody))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := New(testConfig(srv.URL), ratelimit.NewSemaphore(1), nil, WithSleeper(rec.sleep))
	rows, err := c.FetchChain(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[1].Bid != nil || rows[1].Price == nil || *rows[1].Price != 2.1 {
		t.Fatalf("unexpected second row %+v", rows[1])
	}

	want := []time.Duration{500 * time.Millisecond, 650 * time.Millisecond, 845 * time.Millisecond}
	if len(rec.waits) != len(want) {
		t.Fatalf("poll waits %v", rec.waits)
	}
	for i := range want {
		if rec.waits[i] != want[i] {
			t.Fatalf("poll wait %d: got %v want %v", i, rec.waits[i], want[i])
		}
	}
}

func TestPollIntervalCapped(t *testing.T) {
	var srv *httptest.Server
	var polls int32
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/details/1":
			if atomic.AddInt32(&polls, 1) < 8 {
				_, _ = w.Write([]byte(`[{"data":[{}]}]`))
				return
			}
			fmt.Fprintf(w, `[{"data":[{"urlForDownload":"%s/dl"}]}]`, srv.URL)
		}
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	c := New(testConfig(srv.URL), nil, nil, WithSleeper(rec.sleep))
	if _, err := c.awaitDownload(context.Background(), srv.URL+"/details/1"); err != nil {
		t.Fatalf("await: %v", err)
	}
	for i, w := range rec.waits {
		if w > time.Second {
			t.Fatalf("wait %d exceeds cap: %v", i, w)
		}
	}
	if rec.waits[len(rec.waits)-1] != time.Second {
		t.Fatalf("expected interval to reach the cap, got %v", rec.waits)
	}
}

func TestFetchChainJobTimeout(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/details/1" {
			_, _ = w.Write([]byte(`[{"data":[{"urlForDownload":null}]}]`))
			return
		}
		fmt.Fprintf(w, `{"status":{"urlForDetails":"%s/details/1"}}`, srv.URL)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.PollInterval = time.Millisecond
	cfg.PollMaxInterval = 5 * time.Millisecond
	cfg.PollTimeout = 40 * time.Millisecond
	_, err := New(cfg, nil, nil).FetchChain(context.Background(), testRequest())
	if !errors.Is(err, ErrJobTimeout) {
		t.Fatalf("expected ErrJobTimeout, got %v", err)
	}
}

func TestBackoffBound(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	rec := &sleepRecorder{}
	_, err := New(cfg, nil, nil, WithSleeper(rec.sleep)).FetchChain(context.Background(), testRequest())
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if int(hits) != cfg.MaxRetries+1 {
		t.Fatalf("expected %d requests, got %d", cfg.MaxRetries+1, hits)
	}
	if len(rec.waits) != cfg.MaxRetries {
		t.Fatalf("expected %d waits, got %v", cfg.MaxRetries, rec.waits)
	}
	for i := 1; i < len(rec.waits); i++ {
		prev, cur := rec.waits[i-1], rec.waits[i]
		if cur != cfg.BackoffMax && cur < 2*prev {
			t.Fatalf("wait %d (%v) is not double %v", i, cur, prev)
		}
		if cur > cfg.BackoffMax {
			t.Fatalf("wait %d (%v) above cap", i, cur)
		}
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, "bad api key", http.StatusForbidden)
	}))
	defer srv.Close()

	rec := &sleepRecorder{}
	_, err := New(testConfig(srv.URL), nil, nil, WithSleeper(rec.sleep)).FetchChain(context.Background(), testRequest())
	if err == nil || errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected immediate failure, got %v", err)
	}
	if hits != 1 || len(rec.waits) != 0 {
		t.Fatalf("expected a single attempt, got %d hits, %d waits", hits, len(rec.waits))
	}
}
