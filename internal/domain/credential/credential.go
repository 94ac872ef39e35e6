package credential

import (
	"errors"
	"time"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrMissingStoreID  = errors.New("credential: missing store id")
	ErrInvalidPlatform = errors.New("credential: invalid platform")

	// ErrNotRefreshable indicates the credential carries no refresh token
	// and must be re-derived from its API key instead.
	ErrNotRefreshable = errors.New("credential: no refresh token")
)

// ---------------------------------------------------------------------------
// Platform
// ---------------------------------------------------------------------------

// Platform identifies which external system a credential authenticates
// against.
type Platform string

const (
	// PlatformMartan is the destination order-management API. Credentials
	// are OAuth tokens renewable with the refresh_token grant.
	PlatformMartan Platform = "martan"
	// PlatformEcomplus is the source commerce API. Credentials are either
	// OAuth bearer tokens or sessions derived from the store API key.
	PlatformEcomplus Platform = "ecomplus"
)

// IsValid returns true if the platform is known.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformMartan, PlatformEcomplus:
		return true
	default:
		return false
	}
}

// String returns the string representation of the platform.
func (p Platform) String() string {
	return string(p)
}

// ---------------------------------------------------------------------------
// Credential
// ---------------------------------------------------------------------------

// Credential is the stored access material for one store on one platform.
// Exactly one row exists per (store_id, platform); upserts merge into the
// existing row.
type Credential struct {
	ID       uint     `gorm:"primaryKey"`
	StoreID  int64    `gorm:"uniqueIndex:idx_store_platform;not null"`
	Platform Platform `gorm:"uniqueIndex:idx_store_platform;size:16;not null"`

	// ExternalStoreID is the platform's own identifier for the store
	// (sent as X-Store-Id on downstream calls).
	ExternalStoreID string `gorm:"size:64"`

	AccessToken  string `gorm:"size:2048;not null"`
	RefreshToken string `gorm:"size:2048"`

	// AuthenticationID and APIKey back API-key-derived sessions; such
	// credentials have no refresh token and are re-derived on refresh.
	AuthenticationID string `gorm:"size:64"`
	APIKey           string `gorm:"size:256"`

	ExpiresAt     time.Time `gorm:"index;not null"`
	LastRefreshAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName maps the credential to its table.
func (Credential) TableName() string { return "store_credentials" }

// Usable reports whether the credential can authenticate a call right now.
func (c *Credential) Usable(now time.Time) bool {
	return c.AccessToken != "" && c.ExpiresAt.After(now)
}

// Refreshable reports whether the credential can be renewed with the
// refresh_token grant.
func (c *Credential) Refreshable() bool {
	return c.RefreshToken != ""
}

// ExpiresWithin reports whether the credential expires inside the horizon.
// Credentials that were never refreshed count as expiring so the sweep
// picks them up.
func (c *Credential) ExpiresWithin(now time.Time, horizon time.Duration) bool {
	if c.ExpiresAt.IsZero() || c.LastRefreshAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(now.Add(horizon))
}

// ---------------------------------------------------------------------------
// AuthChallenge
// ---------------------------------------------------------------------------

// AuthChallenge is the single-use PKCE scratch record created when an OAuth
// authorization flow starts. It is deleted after the code exchange consumes
// its verifier.
type AuthChallenge struct {
	StoreID      int64  `gorm:"primaryKey"`
	CodeVerifier string `gorm:"size:128;not null"`
	CreatedAt    time.Time
}

// TableName maps the challenge to its table.
func (AuthChallenge) TableName() string { return "auth_challenges" }
