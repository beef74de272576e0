package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"VolPull/internal/domain/models"
	"VolPull/pkg/util"
)

// fakeProvider synthesizes a small chain for whatever dte is requested.
type fakeProvider struct {
	mu sync.Mutex
	// missing lists "YYYY-MM-DD/dte" or "YYYY-MM-DD/dte/C" keys with no listings.
	missing map[string]bool
	// fridaysOnly lists nothing for expiries that are not Fridays.
	fridaysOnly bool
	// failOn lists trade dates whose fetches return an error.
	failOn map[string]bool
	calls  []models.ChainRequest
}

var errProviderDown = errors.New("provider down")

func newFakeProvider() *fakeProvider {
	return &fakeProvider{missing: map[string]bool{}, failOn: map[string]bool{}}
}

func (f *fakeProvider) FetchChain(ctx context.Context, req models.ChainRequest) ([]models.RawQuote, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	day := util.FormatDate(req.TradeDate)
	if f.failOn[day] {
		return nil, errProviderDown
	}
	dte := req.DTE.From
	key := fmt.Sprintf("%s/%d", day, dte)
	if f.missing[key] || f.missing[key+"/"+string(req.CP)] {
		return nil, nil
	}
	exp := req.TradeDate.AddDate(0, 0, dte)
	if f.fridaysOnly && exp.Weekday() != time.Friday {
		return nil, nil
	}
	expiry := util.FormatDate(exp)
	var rows []models.RawQuote
	for _, k := range []float64{95, 100, 105} {
		rows = append(rows, models.RawQuote{
			OptionSymbol:   fmt.Sprintf("SPX%s%s%05.0f", expiry, req.CP, k),
			CallPut:        string(req.CP),
			ExpirationDate: expiry,
			DTE:            intPtr(dte),
			Strike:         floatPtr(k),
			Bid:            floatPtr(1),
			Ask:            floatPtr(1.2),
		})
	}
	return rows, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
