package sync

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/shared"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/queue"
)

// Redrive re-queues pending records that went stale, usually because the
// process died mid-flight or a store's credentials were missing at the
// time. It also expires terminally failed records past their retention.
type Redrive struct {
	records syncdomain.RecordRepository
	errors  syncdomain.ErrorRepository
	queue   queue.Queue
	cfg     config.SweepConfig
	logger  *zap.Logger
}

// NewRedrive creates a new Redrive
func NewRedrive(
	records syncdomain.RecordRepository,
	errorRepo syncdomain.ErrorRepository,
	q queue.Queue,
	cfg config.SweepConfig,
	logger *zap.Logger,
) *Redrive {
	return &Redrive{
		records: records,
		errors:  errorRepo,
		queue:   q,
		cfg:     cfg,
		logger:  logger.Named("redrive"),
	}
}

// Run executes one re-drive pass
func (r *Redrive) Run(ctx context.Context) {
	now := time.Now()
	stale, err := r.records.FindStalePending(ctx, now.Add(-r.cfg.RedriveStaleAfter), r.cfg.RedriveBatch)
	if err != nil {
		r.logger.Error("failed to find stale pending records", zap.Error(err))
		return
	}
	if len(stale) == 0 {
		return
	}

	r.logger.Info("re-driving stale pending records", zap.Int("count", len(stale)))

	for i, record := range stale {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && !sleep(ctx, r.cfg.RedriveDelay) {
			return
		}

		msg := queue.NewMessage(record.OrderID, record.StoreID, record.Variant, nil)
		if err := r.queue.Publish(ctx, msg); err != nil {
			r.logger.Error("failed to re-queue record",
				zap.String("order_id", record.OrderID),
				zap.Error(err))
			continue
		}
		r.markRetried(ctx, record.OrderID)
	}
}

// markRetried flags the failure diagnostic of a re-driven order, if any
func (r *Redrive) markRetried(ctx context.Context, orderID string) {
	errorRecord, err := r.errors.FindByOrderID(ctx, orderID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			r.logger.Error("failed to load error record",
				zap.String("order_id", orderID),
				zap.Error(err))
		}
		return
	}
	errorRecord.Retried = true
	if err := r.errors.Save(ctx, errorRecord); err != nil {
		r.logger.Error("failed to flag error record as retried",
			zap.String("order_id", orderID),
			zap.Error(err))
	}
}

// RunRetention expires terminally failed records past their retention age
func (r *Redrive) RunRetention(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.RecordRetentionAge)
	deleted, err := r.records.DeleteFailedBefore(ctx, cutoff, r.cfg.RecordRetentionBatch)
	if err != nil {
		r.logger.Error("failed to expire failed records", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("expired failed records", zap.Int64("count", deleted))
	}
}
