package job

import (
	"context"
	"fmt"
	"time"

	"recsys/internal/config"
	"recsys/internal/model"
	"recsys/internal/repository"
	"recsys/internal/service"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StalePredictionJob recovers predictions a worker picked up but never
// settled, e.g. because it crashed and the task message was lost.
type StalePredictionJob struct {
	predictionRepo    *repository.PredictionRepository
	predictions       *service.PredictionService
	visibilityTimeout time.Duration
	maxAttempts       int
	refundOnFailure   bool
	interval          time.Duration
	batchSize         int
	log               *zap.SugaredLogger
}

func NewStalePredictionJob(db *gorm.DB, predictions *service.PredictionService, cfg *config.Config) *StalePredictionJob {
	return &StalePredictionJob{
		predictionRepo:    repository.NewPredictionRepository(db),
		predictions:       predictions,
		visibilityTimeout: cfg.Business.VisibilityTimeout,
		maxAttempts:       cfg.Business.MaxAttempts,
		refundOnFailure:   cfg.Business.RefundOnFailure,
		interval:          cfg.Jobs.SweepInterval,
		batchSize:         cfg.Jobs.SweepBatchSize,
		log:               zap.S().Named("stale_prediction_job"),
	}
}

func (j *StalePredictionJob) Start(ctx context.Context) {
	j.log.Info("stale prediction job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.log.Info("context done, stale prediction job exiting")
			return
		case <-ticker.C:
			j.Sweep(ctx, time.Now())
		}
	}
}

// Sweep handles every prediction that has been processing since before
// now minus the visibility timeout.
func (j *StalePredictionJob) Sweep(ctx context.Context, now time.Time) {
	predictions, err := j.predictionRepo.GetStaleProcessing(ctx, now.Add(-j.visibilityTimeout), j.batchSize)
	if err != nil {
		j.log.Errorf("load stale predictions: %v", err)
		return
	}

	if len(predictions) == 0 {
		return
	}

	j.log.Infof("found %d stale predictions", len(predictions))

	for _, prediction := range predictions {
		j.recover(ctx, prediction)
	}
}

func (j *StalePredictionJob) recover(ctx context.Context, prediction *model.Prediction) {
	if prediction.Attempts >= j.maxAttempts {
		reason := fmt.Sprintf("gave up after %d attempts", prediction.Attempts)
		err := j.predictions.Fail(ctx, nil, prediction, model.PredictionStatusProcessing, reason, j.refundOnFailure)
		if err != nil {
			j.log.Errorf("fail stale prediction %d: %v", prediction.ID, err)
			return
		}
		j.log.Warnf("stale prediction failed: id=%d, attempts=%d", prediction.ID, prediction.Attempts)
		return
	}

	if err := j.predictions.Requeue(ctx, prediction); err != nil {
		j.log.Errorf("requeue stale prediction %d: %v", prediction.ID, err)
		return
	}
	j.log.Infof("stale prediction requeued: id=%d, attempts=%d", prediction.ID, prediction.Attempts)
}
