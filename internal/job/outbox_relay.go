package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recsys/internal/config"
	"recsys/internal/metrics"
	"recsys/internal/model"
	"recsys/internal/repository"
	"recsys/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Publisher delivers one message to the broker.
type Publisher interface {
	SendMessage(topic, key, value string) error
}

// OutboxRelay publishes pending outbox messages. A message that still cannot
// be published after the retry budget fails its prediction. The charge is
// refunded when no worker ever picked the prediction up, otherwise only when
// refundOnFailure is set.
type OutboxRelay struct {
	db              *gorm.DB
	outboxRepo      *repository.OutboxRepository
	predictionRepo  *repository.PredictionRepository
	predictions     *service.PredictionService
	publisher       Publisher
	maxRetryCount   int
	refundOnFailure bool
	interval        time.Duration
	batchSize       int
	log             *zap.SugaredLogger
}

func NewOutboxRelay(db *gorm.DB, publisher Publisher, predictions *service.PredictionService, cfg *config.Config) *OutboxRelay {
	return &OutboxRelay{
		db:              db,
		outboxRepo:      repository.NewOutboxRepository(db),
		predictionRepo:  repository.NewPredictionRepository(db),
		predictions:     predictions,
		publisher:       publisher,
		maxRetryCount:   cfg.Business.MaxRetryCount,
		refundOnFailure: cfg.Business.RefundOnFailure,
		interval:        cfg.Jobs.OutboxInterval,
		batchSize:       cfg.Jobs.OutboxBatchSize,
		log:             zap.S().Named("outbox_relay"),
	}
}

func (r *OutboxRelay) Start(ctx context.Context) {
	r.log.Info("outbox relay started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("context done, outbox relay exiting")
			return
		case <-ticker.C:
			r.RelayPending(ctx)
		}
	}
}

// RelayPending makes one publish attempt for every pending message of the
// current batch.
func (r *OutboxRelay) RelayPending(ctx context.Context) {
	messages, err := r.outboxRepo.GetPendingMessages(ctx, r.batchSize)
	if err != nil {
		r.log.Errorf("load pending messages: %v", err)
		return
	}

	for _, msg := range messages {
		r.relay(ctx, msg)
	}
}

func (r *OutboxRelay) relay(ctx context.Context, msg *model.OutboxMessage) {
	err := r.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		metrics.IncreaseOutboxMetric("sent")
		if updateErr := r.outboxRepo.MarkAsSent(ctx, msg.ID); updateErr != nil {
			r.log.Errorf("mark message %d sent: %v", msg.ID, updateErr)
		} else {
			r.log.Debugf("message sent: id=%d, topic=%s, key=%s", msg.ID, msg.Topic, msg.MessageKey)
		}
		return
	}

	metrics.IncreaseOutboxMetric("error")
	r.log.Warnf("publish message %d: %v", msg.ID, err)

	if msg.RetryCount+1 < r.maxRetryCount {
		if err := r.outboxRepo.IncrementRetryCount(ctx, msg.ID, err.Error()); err != nil {
			r.log.Errorf("increment retry count of message %d: %v", msg.ID, err)
		}
		return
	}

	if err := r.giveUp(ctx, msg, err); err != nil {
		r.log.Errorf("give up message %d: %v", msg.ID, err)
		return
	}
	metrics.IncreaseOutboxMetric("failed")
	r.log.Warnf("message %d failed after %d attempts, prediction %d failed", msg.ID, msg.RetryCount+1, msg.AggregateID)
}

// giveUp marks the message failed and fails its still pending prediction in
// one transaction. A requeued prediction (Attempts > 0) already consumed
// compute, so it follows the same refund policy as the stale sweep.
func (r *OutboxRelay) giveUp(ctx context.Context, msg *model.OutboxMessage, cause error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.outboxRepo.MarkAsFailed(ctx, tx, msg.ID, cause.Error()); err != nil {
			return err
		}

		prediction, err := r.predictionRepo.GetByID(ctx, tx, msg.AggregateID)
		if err != nil {
			if errors.Is(err, repository.ErrPredictionNotFound) {
				return nil
			}
			return err
		}
		if prediction.Status != model.PredictionStatusPending {
			return nil
		}

		reason := fmt.Sprintf("task dispatch failed: %v", cause)
		refund := prediction.Attempts == 0 || r.refundOnFailure
		return r.predictions.Fail(ctx, tx, prediction, model.PredictionStatusPending, reason, refund)
	})
}
