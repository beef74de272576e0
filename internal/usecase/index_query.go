package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"VolPull/internal/domain/models"
	drepo "VolPull/internal/domain/repository"
	"VolPull/pkg/util"
)

// IndexQuery serves stored index values to the read API.
type IndexQuery struct {
	store drepo.IndexValueStore
}

func NewIndexQuery(store drepo.IndexValueStore) *IndexQuery {
	return &IndexQuery{store: store}
}

// Find returns the stored series for a validated request.
func (q *IndexQuery) Find(ctx context.Context, req models.IndexQueryRequest) (*models.IndexQueryResponse, error) {
	spec, err := drepo.LookupIndex(models.IndexType(req.IndexType))
	if err != nil {
		return nil, err
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}

	from, err := optionalDate(req.From)
	if err != nil {
		return nil, err
	}
	to, err := optionalDate(req.To)
	if err != nil {
		return nil, err
	}

	values, err := q.store.Find(ctx, symbol, spec.Type, from, to, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("find index values: %w", err)
	}
	resp := &models.IndexQueryResponse{
		Symbol:    symbol,
		IndexType: string(spec.Type),
		Points:    make([]models.IndexPoint, 0, len(values)),
	}
	for _, v := range values {
		resp.Points = append(resp.Points, models.IndexPoint{
			TradeDate:    util.FormatDate(v.TradeDate),
			Value:        v.Value,
			VarianceNear: v.VarianceNear,
			VarianceNext: v.VarianceNext,
		})
	}
	return resp, nil
}

func optionalDate(s string) (t time.Time, err error) {
	if s == "" {
		return t, nil
	}
	t, ok := util.ParseDate(s)
	if !ok {
		return t, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}
