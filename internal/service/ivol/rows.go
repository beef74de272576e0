package ivol

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"math"

	"VolPull/internal/domain/models"
	xhttp "VolPull/pkg/http"
	"VolPull/pkg/util"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/gzip"
	"github.com/valyala/fastjson"
)

// csvRow mirrors the columns of the provider's downloadable result file.
type csvRow struct {
	OptionSymbol    string `csv:"option_symbol"`
	CallPut         string `csv:"call_put"`
	ExpirationDate  string `csv:"expiration_date"`
	DTE             string `csv:"dte"`
	Strike          string `csv:"price_strike"`
	Bid             string `csv:"Bid"`
	Ask             string `csv:"Ask"`
	Price           string `csv:"price"`
	IV              string `csv:"iv"`
	Delta           string `csv:"delta"`
	Gamma           string `csv:"gamma"`
	Theta           string `csv:"theta"`
	Vega            string `csv:"vega"`
	Volume          string `csv:"volume"`
	OpenInterest    string `csv:"openinterest"`
	UnderlyingPrice string `csv:"underlying_price"`
	IsSettlement    string `csv:"is_settlement"`
}

func (r *csvRow) toRaw() models.RawQuote {
	raw := models.RawQuote{
		OptionSymbol:    r.OptionSymbol,
		CallPut:         r.CallPut,
		ExpirationDate:  r.ExpirationDate,
		Strike:          util.ParseFloatPtr(r.Strike),
		Bid:             util.ParseFloatPtr(r.Bid),
		Ask:             util.ParseFloatPtr(r.Ask),
		Price:           util.ParseFloatPtr(r.Price),
		IV:              util.ParseFloatPtr(r.IV),
		Delta:           util.ParseFloatPtr(r.Delta),
		Gamma:           util.ParseFloatPtr(r.Gamma),
		Theta:           util.ParseFloatPtr(r.Theta),
		Vega:            util.ParseFloatPtr(r.Vega),
		Volume:          util.ParseFloatPtr(r.Volume),
		OpenInterest:    util.ParseFloatPtr(r.OpenInterest),
		UnderlyingPrice: util.ParseFloatPtr(r.UnderlyingPrice),
		IsSettlement:    util.ParseFloatPtr(r.IsSettlement),
	}
	if d := util.ParseFloatPtr(r.DTE); d != nil {
		v := int(math.Round(*d))
		raw.DTE = &v
	}
	return raw
}

// download fetches the job result, gunzipping it when needed, and decodes the CSV.
func (c *Client) download(ctx context.Context, url string) ([]models.RawQuote, error) {
	body, err := c.getWithRetry(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     url,
		Timeout: c.cfg.DownloadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("download result: %w", err)
	}
	return decodeCSV(bytes.NewReader(body))
}

func decodeCSV(r io.Reader) ([]models.RawQuote, error) {
	br := bufio.NewReader(r)
	if magic, err := br.Peek(2); err == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	} else {
		r = br
	}

	var rows []*csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	out := make([]models.RawQuote, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toRaw())
	}
	return out, nil
}

// rowFromJSON reads one inline row. Numbers may arrive as JSON numbers,
// numeric strings or null.
func rowFromJSON(v *fastjson.Value) models.RawQuote {
	raw := models.RawQuote{
		OptionSymbol:    str(v, "option_symbol"),
		CallPut:         str(v, "call_put"),
		ExpirationDate:  str(v, "expiration_date"),
		Strike:          num(v, "price_strike"),
		Bid:             num(v, "Bid"),
		Ask:             num(v, "Ask"),
		Price:           num(v, "price"),
		IV:              num(v, "iv"),
		Delta:           num(v, "delta"),
		Gamma:           num(v, "gamma"),
		Theta:           num(v, "theta"),
		Vega:            num(v, "vega"),
		Volume:          num(v, "volume"),
		OpenInterest:    num(v, "openinterest"),
		UnderlyingPrice: num(v, "underlying_price"),
		IsSettlement:    num(v, "is_settlement"),
	}
	if d := num(v, "dte"); d != nil {
		n := int(math.Round(*d))
		raw.DTE = &n
	}
	return raw
}

func str(v *fastjson.Value, key string) string {
	f := v.Get(key)
	if f == nil {
		return ""
	}
	switch f.Type() {
	case fastjson.TypeString:
		return string(f.GetStringBytes())
	case fastjson.TypeNumber:
		return f.String()
	default:
		return ""
	}
}

func num(v *fastjson.Value, key string) *float64 {
	f := v.Get(key)
	if f == nil {
		return nil
	}
	switch f.Type() {
	case fastjson.TypeNumber:
		x := f.GetFloat64()
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return &x
	case fastjson.TypeString:
		return util.ParseFloatPtr(string(f.GetStringBytes()))
	default:
		return nil
	}
}
