package recommend

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Weights are the relative importance of each attribute when two items are
// compared. They need not sum to one; scores are normalised by their total.
type Weights struct {
	Category float64 `yaml:"category"`
	Style    float64 `yaml:"style"`
	Color    float64 `yaml:"color"`
	Material float64 `yaml:"material"`
	Size     float64 `yaml:"size"`
	Price    float64 `yaml:"price"`
}

func (w Weights) total() float64 {
	return w.Category + w.Style + w.Color + w.Material + w.Size + w.Price
}

// Model is the artifact the catalog engine is loaded from.
type Model struct {
	Name    string  `yaml:"name"`
	Version int     `yaml:"version"`
	Weights Weights `yaml:"weights"`
}

func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	return ParseModel(data)
}

func ParseModel(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}

	w := m.Weights
	for name, v := range map[string]float64{
		"category": w.Category, "style": w.Style, "color": w.Color,
		"material": w.Material, "size": w.Size, "price": w.Price,
	} {
		if v < 0 {
			return nil, fmt.Errorf("weight %s must not be negative", name)
		}
	}
	if w.total() <= 0 {
		return nil, fmt.Errorf("model %q has no positive weight", m.Name)
	}
	return &m, nil
}
