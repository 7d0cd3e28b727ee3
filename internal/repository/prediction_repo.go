package repository

import (
	"context"
	"errors"
	"time"

	"recsys/internal/model"

	"gorm.io/gorm"
)

var (
	ErrPredictionNotFound      = errors.New("prediction not found")
	ErrPredictionStatusInvalid = errors.New("prediction status invalid")
)

type PredictionRepository struct {
	db *gorm.DB
}

func NewPredictionRepository(db *gorm.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

func (r *PredictionRepository) Create(ctx context.Context, tx *gorm.DB, prediction *model.Prediction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Omit("SimilarItems").Create(prediction).Error
}

func (r *PredictionRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Prediction, error) {
	if tx == nil {
		tx = r.db
	}
	var prediction model.Prediction
	err := tx.WithContext(ctx).Where("id = ?", id).First(&prediction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPredictionNotFound
		}
		return nil, err
	}
	return &prediction, nil
}

// GetWithResults loads the prediction and its ranked similar items.
func (r *PredictionRepository) GetWithResults(ctx context.Context, id int64) (*model.Prediction, error) {
	var prediction model.Prediction
	err := r.db.WithContext(ctx).
		Preload("SimilarItems", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("id = ?", id).
		First(&prediction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPredictionNotFound
		}
		return nil, err
	}
	return &prediction, nil
}

// GetByRequestID returns nil, nil when the user never used requestID.
func (r *PredictionRepository) GetByRequestID(ctx context.Context, userID int64, requestID string) (*model.Prediction, error) {
	var prediction model.Prediction
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND request_id = ?", userID, requestID).
		First(&prediction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &prediction, nil
}

// UpdateStatus moves a prediction from fromStatus to toStatus together with
// any extra columns. It fails with ErrPredictionStatusInvalid when the move is
// not allowed or the row is no longer in fromStatus.
func (r *PredictionRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, fields map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrPredictionStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range fields {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Prediction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrPredictionStatusInvalid
	}

	return nil
}

func (r *PredictionRepository) CreateSimilarItems(ctx context.Context, tx *gorm.DB, items []model.SimilarItem) error {
	if len(items) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *PredictionRepository) GetStaleProcessing(ctx context.Context, before time.Time, limit int) ([]*model.Prediction, error) {
	var predictions []*model.Prediction
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.PredictionStatusProcessing, before).
		Order("id ASC").
		Limit(limit).
		Find(&predictions).Error
	return predictions, err
}

func (r *PredictionRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.Prediction, int64, error) {
	var predictions []*model.Prediction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Prediction{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&predictions).Error

	return predictions, total, err
}
