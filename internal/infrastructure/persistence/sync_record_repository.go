package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
)

// GormSyncRecordRepository implements sync.RecordRepository using GORM
type GormSyncRecordRepository struct {
	db *gorm.DB
}

// NewGormSyncRecordRepository creates a new GormSyncRecordRepository
func NewGormSyncRecordRepository(db *gorm.DB) *GormSyncRecordRepository {
	return &GormSyncRecordRepository{db: db}
}

// Create inserts a new sync record
func (r *GormSyncRecordRepository) Create(ctx context.Context, record *sync.Record) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// FindByOrderID finds the sync record for an order id
func (r *GormSyncRecordRepository) FindByOrderID(ctx context.Context, orderID string) (*sync.Record, error) {
	var record sync.Record
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// SavePayload stores the enriched payload for the record of an order
func (r *GormSyncRecordRepository) SavePayload(ctx context.Context, orderID string, payload []byte) error {
	result := r.db.WithContext(ctx).
		Model(&sync.Record{}).
		Where("order_id = ?", orderID).
		Update("payload", payload)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SaveState persists the state, retry count and failure code of a record.
// Column-scoped so a concurrent payload write is never clobbered.
func (r *GormSyncRecordRepository) SaveState(ctx context.Context, record *sync.Record) error {
	result := r.db.WithContext(ctx).
		Model(&sync.Record{}).
		Where("order_id = ?", record.OrderID).
		Updates(map[string]interface{}{
			"state":        record.State,
			"retry_count":  record.RetryCount,
			"failure_code": record.FailureCode,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindStalePending finds pending records created before the cutoff, oldest first
func (r *GormSyncRecordRepository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*sync.Record, error) {
	var records []*sync.Record
	if err := r.db.WithContext(ctx).
		Where("state = ? AND created_at < ?", sync.StatePending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteFailedBefore removes terminally failed records older than the cutoff
func (r *GormSyncRecordRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	subQuery := r.db.Model(&sync.Record{}).
		Select("id").
		Where("state = ? AND updated_at < ?", sync.StateFailed, cutoff).
		Order("updated_at ASC").
		Limit(limit)

	result := r.db.WithContext(ctx).
		Where("id IN (?)", subQuery).
		Delete(&sync.Record{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormSyncRecordRepository implements sync.RecordRepository
var _ sync.RecordRepository = (*GormSyncRecordRepository)(nil)
