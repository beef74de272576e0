package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/internal/repository"
	"VolPull/internal/usecase"
	xhttp "VolPull/pkg/http"
	xlogger "VolPull/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

type failingHealth struct{}

func (failingHealth) Health(context.Context) error { return errors.New("connection refused") }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, health HealthChecker) (*xhttp.Server, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	if health == nil {
		health = store
	}
	h := NewIndexEchoHandler(xlogger.Nop(), usecase.NewIndexQuery(store), health)
	srv := xhttp.NewServer(h, xhttp.WithRegistry(prometheus.NewRegistry()))
	return srv, store
}

func get(srv *xhttp.Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestIndexReturnsStoredSeries(t *testing.T) {
	srv, store := newTestServer(t, nil)
	ctx := context.Background()
	for i, v := range []float64{18.5, 19.25, 17.75} {
		err := store.Upsert(ctx, models.IndexValue{
			Symbol:    "SPX",
			TradeDate: time.Date(2024, 3, 4+i, 0, 0, 0, 0, time.UTC),
			IndexType: models.IndexVIX,
			Value:     v,
		})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	rec := get(srv, "/api/index?symbol=spx&from=2024-03-05")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var resp models.IndexQueryResponse
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.Symbol != "SPX" || resp.IndexType != "VIX" {
		t.Fatalf("unexpected header %+v", resp)
	}
	if len(resp.Points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(resp.Points))
	}
	if resp.Points[0].TradeDate != "2024-03-05" || resp.Points[0].Value != 19.25 {
		t.Fatalf("unexpected first point %+v", resp.Points[0])
	}
	if cc := rec.Header().Get("Cache-Control"); cc == "" {
		t.Fatalf("missing cache header")
	}
}

func TestIndexRejectsInvalidQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	cases := map[string]string{
		"missing symbol": "/api/index",
		"bad type":       "/api/index?symbol=SPX&index_type=VXN",
		"bad date":       "/api/index?symbol=SPX&from=03/05/2024",
		"bad limit":      "/api/index?symbol=SPX&limit=20000",
	}
	for name, target := range cases {
		rec := get(srv, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", name, rec.Code)
		}
		var env envelope
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		var errs []xhttp.ValidationError
		if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) == 0 {
			t.Fatalf("%s: expected validation errors, got %s", name, env.Data)
		}
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	if rec := get(srv, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthy store: status %d", rec.Code)
	}

	down, _ := newTestServer(t, failingHealth{})
	if rec := get(down, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("failing store: status %d", rec.Code)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	get(srv, "/api/index?symbol=SPX")

	rec := get(srv, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `volpull_http_requests_total{method="GET",route="/api/index",status="200"} 1`) {
		t.Fatalf("request counter missing:\n%s", body)
	}
}
