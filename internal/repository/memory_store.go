package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	"VolPull/pkg/util"
)

type quoteKey struct {
	symbol   string
	day      time.Time
	optionID string
}

type dayKey struct {
	symbol string
	day    time.Time
}

type rateKey struct {
	day   time.Time
	tenor string
}

type indexKey struct {
	symbol    string
	day       time.Time
	indexType models.IndexType
}

// MemoryStore keeps everything in process memory. Used by backend "memory"
// and by tests.
type MemoryStore struct {
	mu        sync.RWMutex
	quotes    map[quoteKey]models.OptionQuote
	snapshots map[dayKey]models.DailySnapshot
	symbols   map[string]models.Symbol
	rates     map[rateKey]float64
	indexes   map[indexKey]models.IndexValue
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quotes:    make(map[quoteKey]models.OptionQuote),
		snapshots: make(map[dayKey]models.DailySnapshot),
		symbols:   make(map[string]models.Symbol),
		rates:     make(map[rateKey]float64),
		indexes:   make(map[indexKey]models.IndexValue),
	}
}

func (s *MemoryStore) Init(ctx context.Context) error   { return nil }
func (s *MemoryStore) Health(ctx context.Context) error { return nil }
func (s *MemoryStore) Close() error                     { return nil }

func (s *MemoryStore) FindQuotes(ctx context.Context, symbol string, tradeDate time.Time, buckets []models.TermBucket, types []models.OptionType) ([]models.OptionQuote, error) {
	day := util.DateOf(tradeDate)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.OptionQuote
	for k, q := range s.quotes {
		if k.symbol != symbol || !k.day.Equal(day) {
			continue
		}
		if !containsBucket(buckets, q.TermBucket) || !containsType(types, q.CP) {
			continue
		}
		out = append(out, q)
	}
	sortQuotes(out)
	return out, nil
}

func (s *MemoryStore) ExistsLeg(ctx context.Context, symbol string, tradeDate time.Time, cp models.OptionType, w models.DTEWindow) (bool, error) {
	day := util.DateOf(tradeDate)
	s.mu.RLock()
	defer s.mu.RUnlock()

	for k, q := range s.quotes {
		if k.symbol == symbol && k.day.Equal(day) && q.CP == cp && w.Contains(q.DTE) {
			return true, nil
		}
	}
	return false, nil
}

// InsertQuotes keeps the first row written for a key.
func (s *MemoryStore) InsertQuotes(ctx context.Context, quotes []models.OptionQuote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range quotes {
		q.TradeDate = util.DateOf(q.TradeDate)
		k := quoteKey{symbol: q.Symbol, day: q.TradeDate, optionID: q.OptionID}
		if _, ok := s.quotes[k]; ok {
			continue
		}
		s.quotes[k] = q
	}
	return nil
}

func (s *MemoryStore) TradeDates(ctx context.Context, symbol string) ([]time.Time, error) {
	s.mu.RLock()
	seen := make(map[time.Time]struct{})
	for k := range s.quotes {
		if k.symbol == symbol {
			seen[k.day] = struct{}{}
		}
	}
	s.mu.RUnlock()
	return sortedDates(seen), nil
}

func (s *MemoryStore) LastCompletedDate(ctx context.Context, symbol string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	found := false
	for k, snap := range s.snapshots {
		if k.symbol != symbol || !snap.Completed {
			continue
		}
		if !found || k.day.After(last) {
			last, found = k.day, true
		}
	}
	return last, found, nil
}

func (s *MemoryStore) MarkDay(ctx context.Context, snap models.DailySnapshot) error {
	snap.TradeDate = util.DateOf(snap.TradeDate)
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.snapshots[dayKey{symbol: snap.Symbol, day: snap.TradeDate}] = snap
	s.mu.Unlock()
	return nil
}

// Snapshot returns the stored progress marker for one day.
func (s *MemoryStore) Snapshot(symbol string, day time.Time) (models.DailySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[dayKey{symbol: symbol, day: util.DateOf(day)}]
	return snap, ok
}

func (s *MemoryStore) GetSymbol(ctx context.Context, symbol string) (models.Symbol, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sym, ok := s.symbols[symbol]
	return sym, ok, nil
}

func (s *MemoryStore) SaveSymbol(ctx context.Context, sym models.Symbol) error {
	s.mu.Lock()
	s.symbols[sym.Symbol] = sym
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FindCurve(ctx context.Context, date time.Time) (models.RateCurve, error) {
	day := util.DateOf(date)
	curve := models.RateCurve{Date: day, Yields: make(map[string]float64)}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.rates {
		if k.day.Equal(day) {
			curve.Yields[k.tenor] = v
		}
	}
	return curve, nil
}

func (s *MemoryStore) UpsertRates(ctx context.Context, rates []models.RiskFreeRate, overwrite bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for _, r := range rates {
		k := rateKey{day: util.DateOf(r.TradeDate), tenor: r.Tenor}
		if _, ok := s.rates[k]; ok && !overwrite {
			continue
		}
		s.rates[k] = r.BEY
		written++
	}
	return written, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, v models.IndexValue) error {
	v.TradeDate = util.DateOf(v.TradeDate)
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.indexes[indexKey{symbol: v.Symbol, day: v.TradeDate, indexType: v.IndexType}] = v
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Dates(ctx context.Context, symbol string, indexType models.IndexType) ([]time.Time, error) {
	s.mu.RLock()
	seen := make(map[time.Time]struct{})
	for k := range s.indexes {
		if k.symbol == symbol && k.indexType == indexType {
			seen[k.day] = struct{}{}
		}
	}
	s.mu.RUnlock()
	return sortedDates(seen), nil
}

func (s *MemoryStore) Find(ctx context.Context, symbol string, indexType models.IndexType, from, to time.Time, limit int) ([]models.IndexValue, error) {
	s.mu.RLock()
	var out []models.IndexValue
	for k, v := range s.indexes {
		if k.symbol != symbol || k.indexType != indexType {
			continue
		}
		if !inRange(k.day, from, to) {
			continue
		}
		out = append(out, v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TradeDate.Before(out[j].TradeDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, symbol string, indexType models.IndexType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.indexes {
		if (symbol == "" || k.symbol == symbol) && (indexType == "" || k.indexType == indexType) {
			delete(s.indexes, k)
		}
	}
	return nil
}

func containsBucket(buckets []models.TermBucket, b models.TermBucket) bool {
	if len(buckets) == 0 {
		return true
	}
	for _, x := range buckets {
		if x == b {
			return true
		}
	}
	return false
}

func containsType(types []models.OptionType, t models.OptionType) bool {
	if len(types) == 0 {
		return true
	}
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func sortQuotes(qs []models.OptionQuote) {
	sort.Slice(qs, func(i, j int) bool {
		a, b := qs[i], qs[j]
		if a.TermBucket != b.TermBucket {
			return a.TermBucket < b.TermBucket
		}
		if a.CP != b.CP {
			return a.CP < b.CP
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.OptionID < b.OptionID
	})
}

func sortedDates(set map[time.Time]struct{}) []time.Time {
	out := make([]time.Time, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func inRange(day, from, to time.Time) bool {
	if !from.IsZero() && day.Before(util.DateOf(from)) {
		return false
	}
	if !to.IsZero() && day.After(util.DateOf(to)) {
		return false
	}
	return true
}

var _ drepo.Store = (*MemoryStore)(nil)
