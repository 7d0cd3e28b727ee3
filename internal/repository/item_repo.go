package repository

import (
	"context"
	"errors"

	"recsys/internal/model"

	"gorm.io/gorm"
)

var ErrItemNotFound = errors.New("item not found")

type ItemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

func (r *ItemRepository) Create(ctx context.Context, tx *gorm.DB, item *model.Item) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(item).Error
}

func (r *ItemRepository) CreateBatch(ctx context.Context, tx *gorm.DB, items []*model.Item) error {
	if len(items) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).CreateInBatches(items, 500).Error
}

func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*model.Item, error) {
	var item model.Item
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) List(ctx context.Context, offset, limit int) ([]*model.Item, error) {
	var items []*model.Item
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error
	return items, err
}

// ListCandidates returns up to limit catalogue items other than excludeID.
func (r *ItemRepository) ListCandidates(ctx context.Context, excludeID int64, limit int) ([]*model.Item, error) {
	var items []*model.Item
	err := r.db.WithContext(ctx).
		Where("id <> ?", excludeID).
		Order("id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}
