package sync

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrNotEligible indicates the order has not reached the delivered
	// fulfillment state yet. Callers treat it as a skip, not a failure.
	ErrNotEligible = errors.New("sync: order not delivered")

	// ErrAlreadyExists indicates a sync record for the order already exists.
	// Ingestion treats it as an idempotent no-op.
	ErrAlreadyExists = errors.New("sync: record already exists")

	// ErrMissingAuthentication indicates no usable credential was found for
	// the store. The attempt is skipped and surfaced as a warning.
	ErrMissingAuthentication = errors.New("sync: no usable credential for store")

	ErrMissingOrderID = errors.New("sync: missing order id")
	ErrMissingStoreID = errors.New("sync: missing store id")
	ErrInvalidVariant = errors.New("sync: invalid platform variant")
	ErrTerminalState  = errors.New("sync: record is in a terminal state")
)

// ---------------------------------------------------------------------------
// Variant
// ---------------------------------------------------------------------------

// Variant identifies which upstream auth/API shape produced an order.
type Variant string

const (
	// VariantStandard is the classic store API authenticated with an
	// OAuth bearer token pair.
	VariantStandard Variant = "standard"
	// VariantCloudCommerce is the v2 store API authenticated with a
	// session derived from the store API key.
	VariantCloudCommerce Variant = "cloudcommerce"
)

// IsValid returns true if the variant is known.
func (v Variant) IsValid() bool {
	switch v {
	case VariantStandard, VariantCloudCommerce:
		return true
	default:
		return false
	}
}

// String returns the string representation of the variant.
func (v Variant) String() string {
	return string(v)
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// State is the synchronization state of a record.
type State string

const (
	// StatePending means the record awaits submission (initial state and
	// retry state).
	StatePending State = "pending"
	// StateSynchronized means the destination accepted the order. Terminal.
	StateSynchronized State = "synchronized"
	// StateFailed means submission failed with a permanent error. Terminal.
	StateFailed State = "failed"
)

// IsValid returns true if the state is known.
func (s State) IsValid() bool {
	switch s {
	case StatePending, StateSynchronized, StateFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true for states that allow no further transitions.
func (s State) IsTerminal() bool {
	return s == StateSynchronized || s == StateFailed
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Payload value objects
// ---------------------------------------------------------------------------

// Product is a normalized line item embedded in the order payload.
// Immutable once attached to a record.
type Product struct {
	ProductID string          `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	URL       string          `json:"url"`
	GTIN      string          `json:"gtin,omitempty"`
	MPN       string          `json:"mpn,omitempty"`
	Pictures  []string        `json:"pictures,omitempty"`
}

// Customer is a normalized buyer embedded in the order payload.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// OrderPayload is the normalized order sent downstream.
type OrderPayload struct {
	OrderID      string     `json:"order_id"`
	OrderDate    time.Time  `json:"order_date"`
	DeliveryDate time.Time  `json:"delivery_date"`
	Products     []Product  `json:"products"`
	Customers    []Customer `json:"customers"`
}

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

// Record is one order to be relayed downstream. At most one non-deleted
// record exists per order id; ingestion enforces this with a
// lookup-before-insert check.
type Record struct {
	ID          uint    `gorm:"primaryKey"`
	OrderID     string  `gorm:"uniqueIndex;size:64;not null"`
	StoreID     int64   `gorm:"index;not null"`
	Variant     Variant `gorm:"size:24;not null"`
	State       State   `gorm:"index;size:16;not null"`
	Payload     []byte  `gorm:"type:jsonb"`
	RetryCount  int     `gorm:"not null;default:0"`
	FailureCode *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName maps the record to its table.
func (Record) TableName() string { return "sync_records" }

// NewRecord creates a pending sync record for an order.
func NewRecord(orderID string, storeID int64, variant Variant) (*Record, error) {
	if orderID == "" {
		return nil, ErrMissingOrderID
	}
	if storeID <= 0 {
		return nil, ErrMissingStoreID
	}
	if !variant.IsValid() {
		return nil, ErrInvalidVariant
	}
	return &Record{
		OrderID: orderID,
		StoreID: storeID,
		Variant: variant,
		State:   StatePending,
	}, nil
}

// MarkSynchronized transitions the record to its terminal success state.
func (r *Record) MarkSynchronized() error {
	if r.State.IsTerminal() {
		if r.State == StateSynchronized {
			return nil
		}
		return ErrTerminalState
	}
	r.State = StateSynchronized
	return nil
}

// MarkFailed transitions the record to its terminal failure state,
// recording the downstream error code.
func (r *Record) MarkFailed(errorCode int) error {
	if r.State.IsTerminal() {
		return ErrTerminalState
	}
	r.State = StateFailed
	r.FailureCode = &errorCode
	return nil
}

// MarkRetry keeps the record pending and counts the attempt.
func (r *Record) MarkRetry() error {
	if r.State.IsTerminal() {
		return ErrTerminalState
	}
	r.RetryCount++
	return nil
}
