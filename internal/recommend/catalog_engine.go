package recommend

import (
	"context"
	"fmt"
	"sort"

	"recsys/internal/model"

	"go.uber.org/zap"
)

// maxCatalogScan bounds how many catalogue rows a single prediction reads.
const maxCatalogScan = 10000

// CatalogSource lists the catalogue items a prediction may choose from.
type CatalogSource interface {
	ListCandidates(ctx context.Context, excludeID int64, limit int) ([]*model.Item, error)
}

// CatalogEngine ranks catalogue items by weighted attribute agreement with
// the input item.
type CatalogEngine struct {
	model   *Model
	catalog CatalogSource
	n       int
	log     *zap.SugaredLogger
}

// NewCatalogEngine loads the model at modelPath. A model that cannot be loaded
// is logged and leaves the engine answering ErrModelUnavailable, so the
// worker keeps consuming and fails predictions instead of crashing.
func NewCatalogEngine(modelPath string, catalog CatalogSource, n int) *CatalogEngine {
	log := zap.S().Named("recommend")

	m, err := LoadModel(modelPath)
	if err != nil {
		log.Errorf("load recommendation model: %v", err)
	} else {
		log.Infof("recommendation model loaded: name=%s, version=%d", m.Name, m.Version)
	}

	return NewCatalogEngineFromModel(m, catalog, n)
}

func NewCatalogEngineFromModel(m *Model, catalog CatalogSource, n int) *CatalogEngine {
	if n <= 0 {
		n = 10
	}
	return &CatalogEngine{
		model:   m,
		catalog: catalog,
		n:       n,
		log:     zap.S().Named("recommend"),
	}
}

func (e *CatalogEngine) Predict(ctx context.Context, item *model.Item) ([]Candidate, error) {
	if e.model == nil {
		return nil, ErrModelUnavailable
	}

	items, err := e.catalog.ListCandidates(ctx, item.ID, maxCatalogScan)
	if err != nil {
		return nil, fmt.Errorf("list catalogue: %w", err)
	}

	candidates := make([]Candidate, 0, len(items))
	for _, other := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidates = append(candidates, Candidate{
			ItemID: other.ID,
			Score:  e.score(item, other),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].ItemID < candidates[j].ItemID
	})

	if len(candidates) > e.n {
		candidates = candidates[:e.n]
	}
	return candidates, nil
}

// score is in [0, 1].
func (e *CatalogEngine) score(a, b *model.Item) float64 {
	w := e.model.Weights

	s := 0.0
	if match(a.Category, b.Category) {
		s += w.Category
	}
	if match(a.Style, b.Style) {
		s += w.Style
	}
	if match(a.Color, b.Color) {
		s += w.Color
	}
	if match(a.Material, b.Material) {
		s += w.Material
	}
	if match(a.Size, b.Size) {
		s += w.Size
	}
	s += w.Price * priceProximity(a, b)

	return s / w.total()
}

func match(a, b string) bool {
	return a != "" && a == b
}

// priceProximity is 1 for equal prices and falls towards 0 as the prices
// drift apart relative to the larger one.
func priceProximity(a, b *model.Item) float64 {
	pa, _ := a.Price.Float64()
	pb, _ := b.Price.Float64()

	high := pa
	if pb > high {
		high = pb
	}
	if high <= 0 {
		return 1
	}

	diff := pa - pb
	if diff < 0 {
		diff = -diff
	}
	return 1 - diff/high
}
