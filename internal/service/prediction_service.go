package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"recsys/internal/config"
	"recsys/internal/infrastructure/lock"
	"recsys/internal/infrastructure/mq"
	"recsys/internal/metrics"
	"recsys/internal/model"
	"recsys/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PredictionService struct {
	db             *gorm.DB
	redisClient    *redis.Client
	cfg            *config.Config
	ledger         *AccountService
	predictionRepo *repository.PredictionRepository
	itemRepo       *repository.ItemRepository
	outboxRepo     *repository.OutboxRepository
	log            *zap.SugaredLogger
}

// NewPredictionService wires the submission flow. A nil redisClient disables
// the per-user submission lock; the ledger's conditional debit still keeps
// the balance consistent.
func NewPredictionService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, ledger *AccountService) *PredictionService {
	return &PredictionService{
		db:             db,
		redisClient:    redisClient,
		cfg:            cfg,
		ledger:         ledger,
		predictionRepo: repository.NewPredictionRepository(db),
		itemRepo:       repository.NewItemRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
		log:            zap.S().Named("prediction_service"),
	}
}

type SubmitRequest struct {
	UserID    int64
	ItemID    int64
	RequestID string
}

type SubmitResponse struct {
	PredictionID  int64           `json:"prediction_id"`
	Status        string          `json:"status"`
	ChargedAmount decimal.Decimal `json:"charged_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	Message       string          `json:"message,omitempty"`
}

// Submit charges the execution cost and records a pending prediction whose
// task is handed to the worker through the outbox. Prediction row, debit and
// outbox row commit together or not at all.
func (s *PredictionService) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.UserID <= 0 || req.ItemID <= 0 {
		return nil, fmt.Errorf("%w: user_id and item_id must be positive", ErrValidation)
	}

	if existing, err := s.findByRequestID(ctx, req); err != nil || existing != nil {
		return existing, err
	}

	if s.redisClient != nil {
		submitLock := lock.NewSubmitLock(s.redisClient, req.UserID)
		if err := submitLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		defer func() {
			if err := submitLock.Unlock(context.Background()); err != nil {
				s.log.Warnf("release submit lock of user %d: %v", req.UserID, err)
			}
		}()

		if existing, err := s.findByRequestID(ctx, req); err != nil || existing != nil {
			return existing, err
		}
	}

	if _, err := s.itemRepo.GetByID(ctx, req.ItemID); err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			metrics.IncreaseSubmissionsMetric("not_found")
			return nil, fmt.Errorf("%w: item %d", ErrNotFound, req.ItemID)
		}
		return nil, fmt.Errorf("load item: %w", err)
	}

	cost := s.cfg.Business.Cost()
	balance, err := s.ledger.GetBalance(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load balance: %w", err)
	}
	if balance.LessThan(cost) {
		metrics.IncreaseSubmissionsMetric("insufficient_funds")
		return nil, ErrInsufficientFunds
	}

	prediction := &model.Prediction{
		UserID:        req.UserID,
		ItemID:        req.ItemID,
		Status:        model.PredictionStatusPending,
		ChargedAmount: cost,
	}
	if req.RequestID != "" {
		prediction.RequestID = &req.RequestID
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.predictionRepo.Create(ctx, tx, prediction); err != nil {
			return fmt.Errorf("create prediction: %w", err)
		}

		if _, err := s.ledger.Debit(ctx, tx, req.UserID, cost, PredictionReference(prediction.ID),
			fmt.Sprintf("similar items for item %d", req.ItemID)); err != nil {
			return err
		}

		return s.enqueue(ctx, tx, prediction.ID)
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			metrics.IncreaseSubmissionsMetric("insufficient_funds")
		}
		return nil, err
	}

	metrics.IncreaseSubmissionsMetric("accepted")
	s.log.Infof("prediction submitted: id=%d, userID=%d, itemID=%d, cost=%s",
		prediction.ID, req.UserID, req.ItemID, cost)

	return &SubmitResponse{
		PredictionID:  prediction.ID,
		Status:        prediction.Status,
		ChargedAmount: cost,
		CreatedAt:     prediction.CreatedAt,
	}, nil
}

// enqueue writes the task intent for predictionID into the outbox within tx.
func (s *PredictionService) enqueue(ctx context.Context, tx *gorm.DB, predictionID int64) error {
	return EnqueueTask(ctx, tx, s.outboxRepo, s.cfg.Kafka.Topic.Tasks, predictionID)
}

// EnqueueTask writes a task message for predictionID into the outbox.
func EnqueueTask(ctx context.Context, tx *gorm.DB, outboxRepo *repository.OutboxRepository, topic string, predictionID int64) error {
	payload, err := mq.EncodeTask(predictionID)
	if err != nil {
		return err
	}

	msg := &model.OutboxMessage{
		AggregateID: predictionID,
		MessageKey:  mq.TaskMessage{PredictionID: predictionID}.Key(),
		Topic:       topic,
		Payload:     payload,
		Status:      model.OutboxStatusPending,
	}
	if err := outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("write outbox message: %w", err)
	}
	return nil
}

func (s *PredictionService) findByRequestID(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	if req.RequestID == "" {
		return nil, nil
	}

	existing, err := s.predictionRepo.GetByRequestID(ctx, req.UserID, req.RequestID)
	if err != nil {
		return nil, fmt.Errorf("load prediction by request id: %w", err)
	}
	if existing == nil {
		return nil, nil
	}

	return &SubmitResponse{
		PredictionID:  existing.ID,
		Status:        existing.Status,
		ChargedAmount: existing.ChargedAmount,
		CreatedAt:     existing.CreatedAt,
		Message:       "prediction already submitted",
	}, nil
}

// Get returns the prediction owned by userID. Similar items are only
// attached once the prediction completed.
func (s *PredictionService) Get(ctx context.Context, predictionID, userID int64) (*model.Prediction, error) {
	prediction, err := s.predictionRepo.GetWithResults(ctx, predictionID)
	if err != nil {
		if errors.Is(err, repository.ErrPredictionNotFound) {
			return nil, fmt.Errorf("%w: prediction %d", ErrNotFound, predictionID)
		}
		return nil, err
	}

	if prediction.UserID != userID {
		return nil, ErrForbidden
	}

	if prediction.Status != model.PredictionStatusCompleted {
		prediction.SimilarItems = nil
	}
	return prediction, nil
}

func (s *PredictionService) List(ctx context.Context, userID int64, page, pageSize int) ([]*model.Prediction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return s.predictionRepo.ListByUserID(ctx, userID, page, pageSize)
}

// Fail moves the prediction from fromStatus to failed with reason as its
// error message. With refund set the charged amount is credited back in the
// same transaction.
func (s *PredictionService) Fail(ctx context.Context, tx *gorm.DB, prediction *model.Prediction, fromStatus, reason string, refund bool) error {
	reason = truncate(reason, 512)

	return s.inTx(ctx, tx, func(tx *gorm.DB) error {
		err := s.predictionRepo.UpdateStatus(ctx, tx, prediction.ID, fromStatus, model.PredictionStatusFailed,
			map[string]interface{}{"error_message": reason})
		if err != nil {
			return err
		}

		if !refund || !prediction.ChargedAmount.IsPositive() {
			return nil
		}
		_, err = s.ledger.Credit(ctx, tx, prediction.UserID, prediction.ChargedAmount,
			PredictionReference(prediction.ID), model.TransactionTypeRefund, "refund: "+reason)
		return err
	})
}

// Requeue puts a prediction stuck in processing back to pending and writes a
// fresh task message for it.
func (s *PredictionService) Requeue(ctx context.Context, prediction *model.Prediction) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := s.predictionRepo.UpdateStatus(ctx, tx, prediction.ID,
			model.PredictionStatusProcessing, model.PredictionStatusPending, nil)
		if err != nil {
			return err
		}
		return s.enqueue(ctx, tx, prediction.ID)
	})
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (s *PredictionService) inTx(ctx context.Context, tx *gorm.DB, fn func(tx *gorm.DB) error) error {
	if tx != nil {
		return fn(tx)
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// PredictionReference is the ledger reference of every balance movement
// belonging to one prediction.
func PredictionReference(predictionID int64) string {
	return fmt.Sprintf("prediction:%d", predictionID)
}
