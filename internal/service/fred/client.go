package fred

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	xhttp "VolPull/pkg/http"
	"VolPull/pkg/util"

	"github.com/gocarina/gocsv"
)

// SeriesToTenor maps FRED constant-maturity Treasury series to tenor labels.
var SeriesToTenor = map[string]string{
	"DGS1MO": "1M",
	"DGS3MO": "3M",
	"DGS6MO": "6M",
	"DGS1":   "1Y",
	"DGS2":   "2Y",
	"DGS3":   "3Y",
	"DGS5":   "5Y",
	"DGS7":   "7Y",
	"DGS10":  "10Y",
	"DGS20":  "20Y",
	"DGS30":  "30Y",
}

// Client downloads Treasury yields from the FRED graph CSV endpoint.
type Client struct {
	url  string
	http *xhttp.Client
}

func New(url string, timeout time.Duration) *Client {
	return &Client{url: url, http: xhttp.NewClient(xhttp.WithTimeout(timeout))}
}

func seriesIDs() []string {
	ids := make([]string, 0, len(SeriesToTenor))
	for id := range SeriesToTenor {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FetchRates returns every non-missing observation in [from, to].
func (c *Client) FetchRates(ctx context.Context, from, to time.Time) ([]models.RiskFreeRate, error) {
	body, err := c.http.SendAndRead(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.url,
		QueryParams: map[string][]string{
			"id":   {strings.Join(seriesIDs(), ",")},
			"cosd": {util.FormatDate(from)},
			"coed": {util.FormatDate(to)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("fred download: %w", err)
	}
	return ParseCSV(body, from, to)
}

// ParseCSV reads a FRED graph CSV. Missing values ("." or blank) are skipped.
func ParseCSV(body []byte, from, to time.Time) ([]models.RiskFreeRate, error) {
	records, err := gocsv.CSVToMaps(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fred csv: %w", err)
	}

	var out []models.RiskFreeRate
	for _, rec := range records {
		raw := rec["observation_date"]
		if raw == "" {
			raw = rec["DATE"]
		}
		d, ok := util.ParseDate(strings.TrimSpace(raw))
		if !ok {
			continue
		}
		if (!from.IsZero() && d.Before(util.DateOf(from))) || (!to.IsZero() && d.After(util.DateOf(to))) {
			continue
		}
		for series, tenor := range SeriesToTenor {
			v := util.ParseFloatPtr(rec[series])
			if v == nil {
				continue
			}
			out = append(out, models.RiskFreeRate{TradeDate: d, Tenor: tenor, BEY: *v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].TradeDate.Equal(out[j].TradeDate) {
			return out[i].TradeDate.Before(out[j].TradeDate)
		}
		return out[i].Tenor < out[j].Tenor
	})
	return out, nil
}

var _ drepo.RateSource = (*Client)(nil)
