package credential

import (
	"context"
	"time"
)

// Fields carries the merge-update values of an upsert. Zero values are
// skipped so concurrent partial writes never blank each other's columns.
type Fields struct {
	ExternalStoreID  string
	AccessToken      string
	RefreshToken     string
	AuthenticationID string
	APIKey           string
	ExpiresAt        time.Time
	LastRefreshAt    time.Time
}

// Repository persists store credentials keyed by (store_id, platform).
type Repository interface {
	// Get returns the credential for a store on a platform, or
	// shared.ErrNotFound.
	Get(ctx context.Context, storeID int64, platform Platform) (*Credential, error)

	// Upsert inserts or merge-updates the credential for the key. It never
	// creates a second row for the same (store_id, platform).
	Upsert(ctx context.Context, storeID int64, platform Platform, fields Fields) error

	// FindExpiring returns up to limit credentials on the platform whose
	// expiry falls within the horizon, stalest (updated_at asc) first.
	FindExpiring(ctx context.Context, platform Platform, horizon time.Time, limit int) ([]*Credential, error)

	// DeleteExpiredBefore removes up to limit credentials on the platform
	// whose expiry predates the cutoff (abandoned stores). Returns the
	// number of deleted rows.
	DeleteExpiredBefore(ctx context.Context, platform Platform, cutoff time.Time, limit int) (int64, error)

	// CountByPlatform returns the number of stored credentials on the
	// platform.
	CountByPlatform(ctx context.Context, platform Platform) (int64, error)

	// ListActiveStoreIDs returns distinct store ids on the platform whose
	// credentials were refreshed after the cutoff.
	ListActiveStoreIDs(ctx context.Context, platform Platform, updatedAfter time.Time) ([]int64, error)
}

// ChallengeRepository persists single-use PKCE challenges.
type ChallengeRepository interface {
	// Save stores the challenge for a store, replacing any previous one.
	Save(ctx context.Context, challenge *AuthChallenge) error

	// Take returns the challenge for a store and deletes it, or
	// shared.ErrNotFound.
	Take(ctx context.Context, storeID int64) (*AuthChallenge, error)
}
