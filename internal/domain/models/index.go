package models

import "time"

// IndexType names a replicated index (VIX, VIX3M).
type IndexType string

const (
	IndexVIX   IndexType = "VIX"
	IndexVIX3M IndexType = "VIX3M"
)

// IndexValue is a computed index for one underlying and date.
type IndexValue struct {
	Symbol       string    `json:"symbol"`
	TradeDate    time.Time `json:"trade_date"`
	IndexType    IndexType `json:"index_type"`
	Value        float64   `json:"value"`
	VarianceNear float64   `json:"variance_near"`
	VarianceNext float64   `json:"variance_next"`
	TNear        float64   `json:"t_near"`
	TNext        float64   `json:"t_next"`
	UpdatedAt    time.Time `json:"updated_at"`
}
