package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RecordRepository persists sync records. Mutations are merge-style partial
// updates so concurrent tasks never clobber each other's columns.
type RecordRepository interface {
	// Create inserts a new record.
	Create(ctx context.Context, record *Record) error

	// FindByOrderID returns the record for an order id, or shared.ErrNotFound.
	FindByOrderID(ctx context.Context, orderID string) (*Record, error)

	// SavePayload stores the enriched payload for a record.
	SavePayload(ctx context.Context, orderID string, payload []byte) error

	// SaveState persists the state, retry count and failure code of a record.
	SaveState(ctx context.Context, record *Record) error

	// FindStalePending returns up to limit pending records created before
	// the cutoff, oldest first.
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*Record, error)

	// DeleteFailedBefore removes up to limit terminally failed records older
	// than the cutoff. Returns the number of deleted rows.
	DeleteFailedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// ErrorRecord is the persisted diagnostic for the latest submission failure
// of an order. One row per order id, overwritten on each new failure.
type ErrorRecord struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID   string    `gorm:"uniqueIndex;size:64;not null"`
	StoreID   int64     `gorm:"not null"`
	Body      string    `gorm:"type:text"`
	Retried   bool      `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName maps the error record to its table.
func (ErrorRecord) TableName() string { return "sync_errors" }

// ErrorRepository persists submission failure diagnostics.
type ErrorRepository interface {
	// Save upserts the error record for its order id.
	Save(ctx context.Context, record *ErrorRecord) error

	// FindByOrderID returns the error record for an order id, or
	// shared.ErrNotFound.
	FindByOrderID(ctx context.Context, orderID string) (*ErrorRecord, error)
}
