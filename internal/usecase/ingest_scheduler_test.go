package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/internal/repository"
	"VolPull/internal/services/normalize"
	"VolPull/pkg/cache"
	"VolPull/pkg/calendar"
)

func newScheduler(p *fakeProvider, store *repository.MemoryStore, cfg IngestConfig) *IngestScheduler {
	if len(cfg.Horizons) == 0 {
		cfg.Horizons = []int{30}
	}
	if cfg.MaxExpiryBackoff == 0 {
		cfg.MaxExpiryBackoff = 3
	}
	s := NewIngestScheduler(p, store, store, calendar.NewNYSE(2023, 2025), normalize.NewNormalizer(nil),
		cache.NewMemoryCache(), nil, nil, cfg)
	s.now = fixedNow(date("2024-01-10"))
	return s
}

func TestIngestDayStoresAllLegs(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	store := repository.NewMemoryStore()
	s := newScheduler(p, store, IngestConfig{})

	res := s.IngestDay(ctx, "SPX", date("2024-01-02"))
	if res.Outcome != OutcomeOK || len(res.Legs) != 4 {
		t.Fatalf("unexpected result %+v", res)
	}
	near, _ := store.FindQuotes(ctx, "SPX", date("2024-01-02"), []models.TermBucket{models.Near30}, nil)
	next, _ := store.FindQuotes(ctx, "SPX", date("2024-01-02"), []models.TermBucket{models.Next30}, nil)
	if len(near) != 6 || len(next) != 6 {
		t.Fatalf("expected 6 near and 6 next quotes, got %d and %d", len(near), len(next))
	}
	if near[0].DTE != 24 || next[0].DTE != 31 {
		t.Fatalf("unexpected expiries %d/%d", near[0].DTE, next[0].DTE)
	}
	snap, ok := store.Snapshot("SPX", date("2024-01-02"))
	if !ok || !snap.Completed || snap.Skipped {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	sym, ok, _ := store.GetSymbol(ctx, "SPX")
	if !ok || !sym.FirstOptionDate.Equal(date("2024-01-02")) {
		t.Fatalf("first option date not recorded: %+v", sym)
	}
}

func TestIngestDayIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	store := repository.NewMemoryStore()
	s := newScheduler(p, store, IngestConfig{})

	s.IngestDay(ctx, "SPX", date("2024-01-02"))
	calls := p.callCount()
	before, _ := store.FindQuotes(ctx, "SPX", date("2024-01-02"), nil, nil)

	res := s.IngestDay(ctx, "SPX", date("2024-01-02"))
	if res.Outcome != OutcomeOK {
		t.Fatalf("rerun failed: %+v", res)
	}
	for _, l := range res.Legs {
		if !l.Existing {
			t.Fatalf("expected every leg to be found in storage, got %+v", l)
		}
	}
	if p.callCount() != calls {
		t.Fatalf("rerun should not refetch, calls %d -> %d", calls, p.callCount())
	}
	after, _ := store.FindQuotes(ctx, "SPX", date("2024-01-02"), nil, nil)
	if len(after) != len(before) {
		t.Fatalf("rows changed on rerun: %d -> %d", len(before), len(after))
	}
}

func TestIngestDayBacksOffExpiry(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.missing["2024-01-02/24"] = true
	store := repository.NewMemoryStore()
	s := newScheduler(p, store, IngestConfig{})

	res := s.IngestDay(ctx, "SPX", date("2024-01-02"))
	if res.Outcome != OutcomeOK {
		t.Fatalf("unexpected outcome %+v", res)
	}
	for _, l := range res.Legs {
		if l.Bucket == models.Near30 && l.Target != 23 {
			t.Fatalf("expected near leg to back off to 23, got %+v", l)
		}
	}
}

func TestIngestDayKeepsLegsOnOneExpiry(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.missing["2024-01-02/24/C"] = true
	store := repository.NewMemoryStore()
	s := newScheduler(p, store, IngestConfig{})

	res := s.IngestDay(ctx, "SPX", date("2024-01-02"))
	if res.Outcome != OutcomeOK {
		t.Fatalf("unexpected outcome %+v", res)
	}
	for _, l := range res.Legs {
		if l.Bucket != models.Near30 {
			continue
		}
		if l.CP == models.Call && (l.Outcome != OutcomeSkipped || l.Target != 24) {
			t.Fatalf("call leg must stay on the put expiry, got %+v", l)
		}
	}
	near, _ := store.FindQuotes(ctx, "SPX", date("2024-01-02"), []models.TermBucket{models.Near30}, nil)
	for _, q := range near {
		if q.DTE != 24 || q.CP != models.Put {
			t.Fatalf("near30 should hold only the dte 24 puts, got %+v", q)
		}
	}
	for _, req := range p.calls {
		if req.CP == models.Call && req.DTE.From < 24 && req.DTE.From > 20 {
			t.Fatalf("call leg backed off on its own: %+v", req)
		}
	}
}

func TestIngestDayFridayOnlyOnWednesday(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.fridaysOnly = true
	store := repository.NewMemoryStore()
	s := newScheduler(p, store, IngestConfig{})

	res := s.IngestDay(ctx, "SPX", date("2024-01-03"))
	if res.Outcome != OutcomeOK {
		t.Fatalf("unexpected outcome %+v", res)
	}
	for _, l := range res.Legs {
		if l.Outcome != OutcomeOK {
			t.Fatalf("expected every leg stored, got %+v", l)
		}
	}
	near, _ := store.FindQuotes(ctx, "SPX", date("2024-01-03"), []models.TermBucket{models.Near30}, nil)
	next, _ := store.FindQuotes(ctx, "SPX", date("2024-01-03"), []models.TermBucket{models.Next30}, nil)
	if len(near) != 6 || near[0].DTE != 23 || len(next) != 6 || next[0].DTE != 37 {
		t.Fatalf("unexpected buckets near=%d next=%d", len(near), len(next))
	}
	snap, _ := store.Snapshot("SPX", date("2024-01-03"))
	if snap.Skipped {
		t.Fatalf("no group should be skipped: %+v", snap)
	}
}

func TestIngestDaySkipsUnlistedGroup(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	for _, dte := range []string{"24", "23", "22", "21"} {
		p.missing["2024-01-02/"+dte] = true
	}
	store := repository.NewMemoryStore()
	s := newScheduler(p, store, IngestConfig{})

	res := s.IngestDay(ctx, "SPX", date("2024-01-02"))
	if res.Outcome != OutcomeOK {
		t.Fatalf("a skipped group must not fail the day: %+v", res)
	}
	var skipped int
	for _, l := range res.Legs {
		if l.Outcome == OutcomeSkipped {
			skipped++
		}
	}
	if skipped != 2 {
		t.Fatalf("expected both near legs skipped, got %d", skipped)
	}
	snap, _ := store.Snapshot("SPX", date("2024-01-02"))
	if !snap.Completed || !snap.Skipped {
		t.Fatalf("expected completed+skipped snapshot, got %+v", snap)
	}
	// Four near attempts for the put, none for the call, one each for next.
	if p.callCount() != 6 {
		t.Fatalf("expected 6 fetches, got %d", p.callCount())
	}
}

func TestIngestSymbolStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	p := newFakeProvider()
	p.failOn["2024-01-04"] = true
	store := repository.NewMemoryStore()
	s := newScheduler(p, store, IngestConfig{StartDate: date("2024-01-01"), EndDate: date("2024-01-08")})

	rep := s.IngestSymbol(ctx, "SPX")
	if rep.OK != 2 || rep.Failed != 1 || !errors.Is(rep.Err, errProviderDown) {
		t.Fatalf("unexpected report %+v", rep)
	}
	last, ok, _ := store.LastCompletedDate(ctx, "SPX")
	if !ok || !last.Equal(date("2024-01-03")) {
		t.Fatalf("cursor should stay on the last good day, got %v", last)
	}
	if _, ok := store.Snapshot("SPX", date("2024-01-04")); ok {
		t.Fatalf("failed day must not be marked")
	}

	// The next run resumes from the failed day.
	delete(p.failOn, "2024-01-04")
	rep = s.IngestSymbol(ctx, "SPX")
	if rep.OK != 3 || rep.Failed != 0 {
		t.Fatalf("unexpected resume report %+v", rep)
	}
	last, _, _ = store.LastCompletedDate(ctx, "SPX")
	if !last.Equal(date("2024-01-08")) {
		t.Fatalf("expected cursor at 2024-01-08, got %v", last)
	}
}

func TestIngestSymbolRespectsLock(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	s := newScheduler(newFakeProvider(), store, IngestConfig{StartDate: date("2024-01-02"), LockTTL: time.Minute})
	if ok, _ := s.locks.TryLock(ctx, "ingest:lock:SPX", time.Minute); !ok {
		t.Fatalf("could not take lock")
	}
	rep := s.IngestSymbol(ctx, "SPX")
	if !rep.Locked || rep.OK != 0 {
		t.Fatalf("expected locked report, got %+v", rep)
	}
}

func TestRunCoversAllSymbols(t *testing.T) {
	store := repository.NewMemoryStore()
	s := newScheduler(newFakeProvider(), store, IngestConfig{StartDate: date("2024-01-08"), EndDate: date("2024-01-09"), Workers: 2})
	rep := s.Run(context.Background(), []string{"SPX", "SPY", "QQQ"})
	if rep.RunID == "" || len(rep.Symbols) != 3 {
		t.Fatalf("unexpected report %+v", rep)
	}
	for _, r := range rep.Symbols {
		if r.OK != 2 {
			t.Fatalf("expected 2 days for %s, got %+v", r.Symbol, r)
		}
	}
}

func TestIngestSymbolNeedsStartDate(t *testing.T) {
	s := newScheduler(newFakeProvider(), repository.NewMemoryStore(), IngestConfig{})
	if rep := s.IngestSymbol(context.Background(), "SPX"); !errors.Is(rep.Err, ErrNoStartDate) {
		t.Fatalf("expected ErrNoStartDate, got %+v", rep)
	}
}
