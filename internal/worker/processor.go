package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recsys/internal/config"
	"recsys/internal/infrastructure/mq"
	"recsys/internal/metrics"
	"recsys/internal/model"
	"recsys/internal/recommend"
	"recsys/internal/repository"
	"recsys/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrPredictTimeout = errors.New("prediction timed out")

// Processor executes one prediction task. Handle returning nil means the
// message may be acknowledged; an error leaves it for redelivery.
type Processor struct {
	db              *gorm.DB
	predictionRepo  *repository.PredictionRepository
	itemRepo        *repository.ItemRepository
	predictions     *service.PredictionService
	engine          recommend.Engine
	timeout         time.Duration
	maxAttempts     int
	refundOnFailure bool
	log             *zap.SugaredLogger
}

func NewProcessor(db *gorm.DB, engine recommend.Engine, predictions *service.PredictionService, cfg *config.Config) *Processor {
	return &Processor{
		db:              db,
		predictionRepo:  repository.NewPredictionRepository(db),
		itemRepo:        repository.NewItemRepository(db),
		predictions:     predictions,
		engine:          engine,
		timeout:         cfg.Worker.PredictTimeout,
		maxAttempts:     cfg.Business.MaxAttempts,
		refundOnFailure: cfg.Business.RefundOnFailure,
		log:             zap.S().Named("worker"),
	}
}

func (p *Processor) Handle(ctx context.Context, payload []byte) error {
	task, err := mq.DecodeTask(payload)
	if err != nil {
		p.log.Warnf("drop task: %v", err)
		return nil
	}

	prediction, err := p.predictionRepo.GetByID(ctx, nil, task.PredictionID)
	if err != nil {
		if errors.Is(err, repository.ErrPredictionNotFound) {
			p.log.Warnf("drop task: prediction %d does not exist", task.PredictionID)
			return nil
		}
		return fmt.Errorf("load prediction %d: %w", task.PredictionID, err)
	}

	if model.IsTerminal(prediction.Status) {
		p.log.Infof("prediction %d already %s, skip", prediction.ID, prediction.Status)
		return nil
	}

	if prediction.Status == model.PredictionStatusProcessing && p.maxAttempts > 0 && prediction.Attempts >= p.maxAttempts {
		return p.fail(ctx, prediction, fmt.Sprintf("gave up after %d attempts", prediction.Attempts))
	}

	if err := p.markProcessing(ctx, prediction); err != nil {
		if errors.Is(err, repository.ErrPredictionStatusInvalid) {
			p.log.Infof("prediction %d changed state concurrently, skip", prediction.ID)
			return nil
		}
		return fmt.Errorf("mark prediction %d processing: %w", prediction.ID, err)
	}

	start := time.Now()
	defer func() {
		metrics.ObservePredictionDuration(time.Since(start))
	}()

	item, err := p.itemRepo.GetByID(ctx, prediction.ItemID)
	if err != nil {
		if errors.Is(err, repository.ErrItemNotFound) {
			return p.fail(ctx, prediction, fmt.Sprintf("item %d not found", prediction.ItemID))
		}
		return fmt.Errorf("load item %d: %w", prediction.ItemID, err)
	}

	candidates, err := p.predict(ctx, item)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.fail(ctx, prediction, err.Error())
	}

	return p.complete(ctx, prediction, candidates)
}

func (p *Processor) markProcessing(ctx context.Context, prediction *model.Prediction) error {
	err := p.predictionRepo.UpdateStatus(ctx, nil, prediction.ID, prediction.Status, model.PredictionStatusProcessing,
		map[string]interface{}{"attempts": gorm.Expr("attempts + 1")})
	if err != nil {
		return err
	}
	prediction.Status = model.PredictionStatusProcessing
	prediction.Attempts++
	return nil
}

// predict bounds the engine call by the configured timeout even when the
// engine ignores its context.
func (p *Processor) predict(ctx context.Context, item *model.Item) ([]recommend.Candidate, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		candidates []recommend.Candidate
		err        error
	}
	done := make(chan result, 1)

	go func() {
		candidates, err := p.engine.Predict(ctx, item)
		done <- result{candidates: candidates, err: err}
	}()

	select {
	case r := <-done:
		if errors.Is(r.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrPredictTimeout, p.timeout)
		}
		return r.candidates, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrPredictTimeout, p.timeout)
		}
		return nil, ctx.Err()
	}
}

// complete stores the result rows and settles the prediction in one
// transaction. If the prediction left processing meanwhile nothing is written.
func (p *Processor) complete(ctx context.Context, prediction *model.Prediction, candidates []recommend.Candidate) error {
	costs := SplitCost(prediction.ChargedAmount, len(candidates))
	rows := make([]model.SimilarItem, 0, len(candidates))
	for i, c := range candidates {
		rows = append(rows, model.SimilarItem{
			PredictionID:    prediction.ID,
			ItemID:          c.ItemID,
			Position:        i + 1,
			SimilarityScore: c.Score,
			Cost:            costs[i],
		})
	}

	now := time.Now()
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := p.predictionRepo.CreateSimilarItems(ctx, tx, rows); err != nil {
			return fmt.Errorf("store similar items: %w", err)
		}
		return p.predictionRepo.UpdateStatus(ctx, tx, prediction.ID,
			model.PredictionStatusProcessing, model.PredictionStatusCompleted,
			map[string]interface{}{
				"total_cost":   prediction.ChargedAmount,
				"completed_at": now,
			})
	})
	if err != nil {
		if errors.Is(err, repository.ErrPredictionStatusInvalid) {
			p.log.Warnf("prediction %d settled concurrently, result discarded", prediction.ID)
			return nil
		}
		return fmt.Errorf("complete prediction %d: %w", prediction.ID, err)
	}

	metrics.IncreaseProcessedMetric(model.PredictionStatusCompleted)
	p.log.Infof("prediction completed: id=%d, similarItems=%d", prediction.ID, len(rows))
	return nil
}

func (p *Processor) fail(ctx context.Context, prediction *model.Prediction, reason string) error {
	err := p.predictions.Fail(ctx, nil, prediction, model.PredictionStatusProcessing, reason, p.refundOnFailure)
	if err != nil {
		if errors.Is(err, repository.ErrPredictionStatusInvalid) {
			p.log.Warnf("prediction %d settled concurrently, failure discarded", prediction.ID)
			return nil
		}
		return fmt.Errorf("fail prediction %d: %w", prediction.ID, err)
	}

	metrics.IncreaseProcessedMetric(model.PredictionStatusFailed)
	p.log.Warnf("prediction failed: id=%d, reason=%s", prediction.ID, reason)
	return nil
}

// SplitCost divides total over n result rows at four decimal places. The
// last row absorbs the rounding remainder so the rows sum to total.
func SplitCost(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}

	share := total.Div(decimal.NewFromInt(int64(n))).Truncate(4)
	costs := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		costs[i] = share
	}
	costs[n-1] = total.Sub(share.Mul(decimal.NewFromInt(int64(n - 1))))
	return costs
}
