package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
)

// GormSyncErrorRepository implements sync.ErrorRepository using GORM
type GormSyncErrorRepository struct {
	db *gorm.DB
}

// NewGormSyncErrorRepository creates a new GormSyncErrorRepository
func NewGormSyncErrorRepository(db *gorm.DB) *GormSyncErrorRepository {
	return &GormSyncErrorRepository{db: db}
}

// Save upserts the error record for its order id, keeping only the latest
// failure per order.
func (r *GormSyncErrorRepository) Save(ctx context.Context, record *sync.ErrorRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"store_id", "body", "retried", "updated_at",
			}),
		}).
		Create(record).Error
}

// FindByOrderID finds the error record for an order id
func (r *GormSyncErrorRepository) FindByOrderID(ctx context.Context, orderID string) (*sync.ErrorRecord, error) {
	var record sync.ErrorRecord
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

// Ensure GormSyncErrorRepository implements sync.ErrorRepository
var _ sync.ErrorRepository = (*GormSyncErrorRepository)(nil)
