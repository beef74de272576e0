package models

// IndexQueryRequest is the query string of GET /api/index.
type IndexQueryRequest struct {
	Symbol    string `query:"symbol" validate:"required,min=1,max=16"`
	IndexType string `query:"index_type" default:"VIX" validate:"oneof=VIX VIX3M"`
	From      string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To        string `query:"to" validate:"omitempty,datetime=2006-01-02"`
	Limit     int    `query:"limit" default:"500" validate:"gt=0,lte=10000"`
}

// IndexPoint is one row of the read API response.
type IndexPoint struct {
	TradeDate    string  `json:"trade_date"`
	Value        float64 `json:"value"`
	VarianceNear float64 `json:"variance_near"`
	VarianceNext float64 `json:"variance_next"`
}

// IndexQueryResponse is the body returned by GET /api/index.
type IndexQueryResponse struct {
	Symbol    string       `json:"symbol"`
	IndexType string       `json:"index_type"`
	Points    []IndexPoint `json:"points"`
}
