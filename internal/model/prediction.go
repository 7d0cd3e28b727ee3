package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PredictionStatusPending    = "pending"
	PredictionStatusProcessing = "processing"
	PredictionStatusCompleted  = "completed"
	PredictionStatusFailed     = "failed"
)

// ValidStatusTransitions lists the allowed moves between prediction states.
// completed and failed are absorbing and therefore have no entry.
var ValidStatusTransitions = map[string][]string{
	PredictionStatusPending: {PredictionStatusProcessing, PredictionStatusFailed},
	PredictionStatusProcessing: {
		PredictionStatusProcessing,
		PredictionStatusPending,
		PredictionStatusCompleted,
		PredictionStatusFailed,
	},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsTerminal(status string) bool {
	return status == PredictionStatusCompleted || status == PredictionStatusFailed
}

type Prediction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"prediction_id"`
	UserID        int64           `gorm:"not null;uniqueIndex:idx_prediction_user_request" json:"user_id"`
	RequestID     *string         `gorm:"type:varchar(64);uniqueIndex:idx_prediction_user_request" json:"request_id,omitempty"`
	ItemID        int64           `gorm:"index;not null" json:"item_id"`
	Status        string          `gorm:"type:varchar(20);index;not null" json:"status"`
	ErrorMessage  *string         `gorm:"type:varchar(512)" json:"error_message,omitempty"`
	ChargedAmount decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"charged_amount"`
	TotalCost     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"total_cost"`
	Attempts      int             `gorm:"not null;default:0" json:"attempts"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	SimilarItems []SimilarItem `gorm:"foreignKey:PredictionID" json:"similar_items"`
}

func (Prediction) TableName() string {
	return "prediction"
}

// SimilarItem is one ranked result row of a completed prediction.
type SimilarItem struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PredictionID    int64           `gorm:"index;not null" json:"prediction_id"`
	ItemID          int64           `gorm:"not null" json:"item_id"`
	Position        int             `gorm:"not null" json:"position"`
	SimilarityScore float64         `gorm:"not null" json:"similarity_score"`
	Cost            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"cost"`
}

func (SimilarItem) TableName() string {
	return "similar_item"
}
