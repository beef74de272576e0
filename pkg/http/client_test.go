package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestSendAndReadMergesQuery(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		if ua := r.Header.Get("User-Agent"); ua != userAgent {
			t.Errorf("user agent %q", ua)
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(WithTimeout(time.Second))
	body, err := c.SendAndRead(context.Background(), &RequestOptions{
		URL:         srv.URL + "/chain?fixed=1",
		QueryParams: url.Values{"symbol": {"SPX"}, "cp": {"C"}},
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body %q", body)
	}
	if got.Get("fixed") != "1" || got.Get("symbol") != "SPX" || got.Get("cp") != "C" {
		t.Fatalf("query %v", got)
	}
}

func TestSendAndReadStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	_, err := NewClient().SendAndRead(context.Background(), &RequestOptions{URL: srv.URL})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusTooManyRequests || !se.Retryable() {
		t.Fatalf("unexpected %+v", se)
	}
	if len(se.Body) != maxErrorBody {
		t.Fatalf("body not truncated: %d", len(se.Body))
	}
	if (&StatusError{StatusCode: http.StatusNotFound}).Retryable() {
		t.Fatalf("404 must not be retryable")
	}
}

func TestSendAndReadPerRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := NewClient().SendAndRead(context.Background(), &RequestOptions{URL: srv.URL, Timeout: 20 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected timeout")
	}
}
