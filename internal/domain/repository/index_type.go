package repository

import (
	"fmt"
	"strings"

	"VolPull/internal/domain/models"
)

// IndexSpec describes which buckets feed an index and its constant maturity.
type IndexSpec struct {
	Type    models.IndexType
	Near    models.TermBucket
	Next    models.TermBucket
	Horizon int
	MCM     float64
}

var indexSpecs = map[models.IndexType]IndexSpec{
	models.IndexVIX:   {Type: models.IndexVIX, Near: models.Near30, Next: models.Next30, Horizon: 30, MCM: 30},
	models.IndexVIX3M: {Type: models.IndexVIX3M, Near: models.Near90, Next: models.Next90, Horizon: 90, MCM: 90},
}

// LookupIndex returns the definition of a supported index type.
func LookupIndex(t models.IndexType) (IndexSpec, error) {
	spec, ok := indexSpecs[models.IndexType(strings.ToUpper(string(t)))]
	if !ok {
		return IndexSpec{}, fmt.Errorf("unsupported index type %q", t)
	}
	return spec, nil
}

// ParseIndexTypes validates a list of index type names.
func ParseIndexTypes(names []string) ([]IndexSpec, error) {
	out := make([]IndexSpec, 0, len(names))
	for _, n := range names {
		spec, err := LookupIndex(models.IndexType(n))
		if err != nil {
			return nil, err
		}
		out = append(out, spec)
	}
	return out, nil
}
