package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type curvePoint struct {
	Tenor string  `json:"tenor"`
	Yield float64 `json:"yield"`
}

func TestMemoryCacheRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := []curvePoint{{"1M", 5.5}, {"3M", 5.4}}
	if err := mc.Set(ctx, "rates:2024-01-05", in, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var out []curvePoint
	if err := mc.Get(ctx, "rates:2024-01-05", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(out) != 2 || out[1].Tenor != "3M" || out[1].Yield != 5.4 {
		t.Fatalf("unexpected %+v", out)
	}
	if err := mc.Get(ctx, "missing", &out); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", time.Nanosecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(time.Millisecond)
	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after expiry, got %v (%q)", err, s)
	}
}

func TestMemoryCacheLock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, _ := mc.TryLock(ctx, "ingest:SPY", time.Minute)
	if !ok {
		t.Fatalf("first lock should succeed")
	}
	ok, _ = mc.TryLock(ctx, "ingest:SPY", time.Minute)
	if ok {
		t.Fatalf("second lock should fail")
	}
	_ = mc.Unlock(ctx, "ingest:SPY")
	ok, _ = mc.TryLock(ctx, "ingest:SPY", time.Minute)
	if !ok {
		t.Fatalf("lock after unlock should succeed")
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	time.Sleep(time.Millisecond)
	_ = mc.Set(ctx, "c", "3", time.Minute)

	var s string
	if err := mc.Get(ctx, "a", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected a evicted")
	}
	if err := mc.Get(ctx, "c", &s); err != nil || s != "3" {
		t.Fatalf("expected c present, got %q %v", s, err)
	}
}

func TestMemoryCacheGetRefreshesRecency(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(2))
	defer mc.Close()
	ctx := context.Background()

	_ = mc.Set(ctx, "a", "1", time.Minute)
	_ = mc.Set(ctx, "b", "2", time.Minute)
	var s string
	if err := mc.Get(ctx, "a", &s); err != nil {
		t.Fatalf("get a: %v", err)
	}
	_ = mc.Set(ctx, "c", "3", time.Minute)

	if err := mc.Get(ctx, "b", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected b evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &s); err != nil || s != "1" {
		t.Fatalf("expected a kept, got %q %v", s, err)
	}
	if mc.Len() != 2 {
		t.Fatalf("len %d", mc.Len())
	}
}

func TestMemoryCacheLocksSurviveEviction(t *testing.T) {
	mc := NewMemoryCache(WithMemoryMaxSize(1))
	defer mc.Close()
	ctx := context.Background()

	if ok, _ := mc.TryLock(ctx, "ingest:lock:SPX", time.Minute); !ok {
		t.Fatalf("lock should succeed")
	}
	for _, k := range []string{"rates:curve:2024-01-02", "rates:curve:2024-01-03"} {
		_ = mc.Set(ctx, k, "curve", time.Minute)
	}
	if ok, _ := mc.TryLock(ctx, "ingest:lock:SPX", time.Minute); ok {
		t.Fatalf("lock must still be held after value eviction")
	}
}

func TestMemoryCacheLockExpires(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()
	now := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	if ok, _ := mc.TryLock(ctx, "k", time.Hour); !ok {
		t.Fatalf("first lock")
	}
	now = now.Add(2 * time.Hour)
	if ok, _ := mc.TryLock(ctx, "k", time.Hour); !ok {
		t.Fatalf("expired lock should be reacquired")
	}
}
