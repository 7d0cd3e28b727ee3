package recommend

import (
	"context"
	"errors"
	"testing"

	"recsys/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	items []*model.Item
	err   error
}

func (c *fakeCatalog) ListCandidates(_ context.Context, excludeID int64, limit int) ([]*model.Item, error) {
	if c.err != nil {
		return nil, c.err
	}
	var out []*model.Item
	for _, item := range c.items {
		if item.ID != excludeID && len(out) < limit {
			out = append(out, item)
		}
	}
	return out, nil
}

func testModel() *Model {
	return &Model{Name: "test", Version: 1, Weights: Weights{
		Category: 0.4, Style: 0.2, Color: 0.15, Material: 0.1, Size: 0.05, Price: 0.1,
	}}
}

func item(id int64, category, style, color string, price int64) *model.Item {
	return &model.Item{
		ID:       id,
		Category: category,
		Style:    style,
		Color:    color,
		Price:    decimal.NewFromInt(price),
	}
}

func TestCatalogEngine_Predict(t *testing.T) {
	input := item(1, "Jeans", "Casual", "Blue", 50)
	catalog := &fakeCatalog{items: []*model.Item{
		input,
		item(2, "Dress", "Classic", "Red", 200),
		item(3, "Jeans", "Casual", "Blue", 50),
		item(4, "Jeans", "Punk", "Black", 50),
		item(5, "Jeans", "Casual", "Black", 60),
	}}

	engine := NewCatalogEngineFromModel(testModel(), catalog, 10)
	candidates, err := engine.Predict(context.Background(), input)
	require.NoError(t, err)

	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ItemID)
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
	assert.Equal(t, []int64{3, 5, 4, 2}, ids)
	assert.InDelta(t, 0.85, candidates[0].Score, 1e-9)
}

func TestCatalogEngine_PredictTiesAndLimit(t *testing.T) {
	input := item(10, "Boots", "", "", 100)
	catalog := &fakeCatalog{}
	for id := int64(30); id > 20; id-- {
		catalog.items = append(catalog.items, item(id, "Boots", "", "", 100))
	}

	engine := NewCatalogEngineFromModel(testModel(), catalog, 3)
	candidates, err := engine.Predict(context.Background(), input)
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, int64(21), candidates[0].ItemID)
	assert.Equal(t, int64(22), candidates[1].ItemID)
	assert.Equal(t, int64(23), candidates[2].ItemID)
}

func TestCatalogEngine_EmptyCatalogue(t *testing.T) {
	input := item(1, "Boots", "", "", 10)
	engine := NewCatalogEngineFromModel(testModel(), &fakeCatalog{items: []*model.Item{input}}, 10)

	candidates, err := engine.Predict(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestCatalogEngine_ModelUnavailable(t *testing.T) {
	engine := NewCatalogEngine("testdata/does-not-exist.yaml", &fakeCatalog{}, 10)

	_, err := engine.Predict(context.Background(), item(1, "Boots", "", "", 10))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestCatalogEngine_CatalogueError(t *testing.T) {
	boom := errors.New("db down")
	engine := NewCatalogEngineFromModel(testModel(), &fakeCatalog{err: boom}, 10)

	_, err := engine.Predict(context.Background(), item(1, "Boots", "", "", 10))
	assert.ErrorIs(t, err, boom)
}

func TestLoadModel(t *testing.T) {
	m, err := LoadModel("../../config/model.yaml")
	require.NoError(t, err)
	assert.Equal(t, "attribute-overlap", m.Name)
	assert.InDelta(t, 1.0, m.Weights.total(), 1e-9)
}

func TestParseModel_Invalid(t *testing.T) {
	_, err := ParseModel([]byte("weights: {category: -1, style: 2}"))
	assert.Error(t, err)

	_, err = ParseModel([]byte("name: empty\nweights: {}"))
	assert.Error(t, err)

	_, err = ParseModel([]byte("weights: ["))
	assert.Error(t, err)
}
