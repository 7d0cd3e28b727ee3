package recommend

import (
	"context"
	"errors"

	"recsys/internal/model"
)

var ErrModelUnavailable = errors.New("recommendation model unavailable")

// Candidate is one similar item proposed by an Engine.
type Candidate struct {
	ItemID int64
	Score  float64
}

// Engine finds items similar to a given catalogue item. Results are sorted by
// descending score, ties broken by ascending item id.
type Engine interface {
	Predict(ctx context.Context, item *model.Item) ([]Candidate, error)
}
