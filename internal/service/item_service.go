package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"recsys/internal/config"
	"recsys/internal/model"
	"recsys/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ItemService struct {
	db       *gorm.DB
	itemRepo *repository.ItemRepository
}

func NewItemService(db *gorm.DB) *ItemService {
	return &ItemService{
		db:       db,
		itemRepo: repository.NewItemRepository(db),
	}
}

type CreateItemRequest struct {
	Name        string
	Description string
	Category    string
	Style       string
	Size        string
	Color       string
	Material    string
	Price       decimal.Decimal
}

func (req *CreateItemRequest) validate() error {
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", ErrValidation)
	}
	if !req.Price.Equal(req.Price.Truncate(config.AmountScale)) || req.Price.GreaterThanOrEqual(config.MaxAmount) {
		return fmt.Errorf("%w: price %s does not fit the catalogue", ErrValidation, req.Price)
	}
	for _, attr := range []struct {
		name, value string
		allowed     []string
	}{
		{"category", req.Category, model.Categories},
		{"style", req.Style, model.Styles},
		{"size", req.Size, model.Sizes},
		{"color", req.Color, model.Colors},
		{"material", req.Material, model.Materials},
	} {
		if attr.value != "" && !oneOf(attr.value, attr.allowed) {
			return fmt.Errorf("%w: unknown %s %q", ErrValidation, attr.name, attr.value)
		}
	}
	return nil
}

func (req *CreateItemRequest) item() *model.Item {
	return &model.Item{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Style:       req.Style,
		Size:        req.Size,
		Color:       req.Color,
		Material:    req.Material,
		Price:       req.Price,
	}
}

func (s *ItemService) Create(ctx context.Context, req *CreateItemRequest) (*model.Item, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	item := req.item()
	if err := s.itemRepo.Create(ctx, nil, item); err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return item, nil
}

// importColumns are the CSV header names ImportCSV understands. Column order
// is free; name and price are mandatory.
var importColumns = []string{"name", "description", "category", "style", "size", "color", "material", "price"}

// ImportCSV loads a catalogue export with a header row. Every row is
// validated before anything is written, and all rows are inserted in one
// transaction, so a bad file leaves the catalogue untouched.
func (s *ItemService) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("%w: read csv header: %v", ErrValidation, err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"name", "price"} {
		if _, ok := index[col]; !ok {
			return 0, fmt.Errorf("%w: csv header lacks %q", ErrValidation, col)
		}
	}

	var items []*model.Item
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("%w: line %d: %v", ErrValidation, line, err)
		}

		field := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		price, err := decimal.NewFromString(field("price"))
		if err != nil {
			return 0, fmt.Errorf("%w: line %d: price %q", ErrValidation, line, field("price"))
		}
		req := &CreateItemRequest{
			Name:        field("name"),
			Description: field("description"),
			Category:    field("category"),
			Style:       field("style"),
			Size:        field("size"),
			Color:       field("color"),
			Material:    field("material"),
			Price:       price,
		}
		if err := req.validate(); err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		items = append(items, req.item())
	}

	if len(items) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.itemRepo.CreateBatch(ctx, tx, items)
	})
	if err != nil {
		return 0, fmt.Errorf("import items: %w", err)
	}
	return len(items), nil
}

func (s *ItemService) Get(ctx context.Context, id int64) (*model.Item, error) {
	item, err := s.itemRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return nil, fmt.Errorf("%w: item %d", ErrNotFound, id)
		}
		return nil, err
	}
	return item, nil
}

func (s *ItemService) List(ctx context.Context, skip, limit int) ([]*model.Item, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return s.itemRepo.List(ctx, skip, limit)
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if a == value {
			return true
		}
	}
	return false
}
