package credential

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/credential"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/downstream"
	"github.com/ordersync/backend/internal/infrastructure/storeapi"
)

// Refresher renews credentials before they expire and prunes the ones that
// belong to long-gone stores. Each pass takes one batch per platform,
// stalest first, and staggers the calls so the authorization servers never
// see a burst.
type Refresher struct {
	repo          credential.Repository
	tokens        downstream.TokenClient
	authenticator storeapi.Authenticator
	cfg           config.SweepConfig
	logger        *zap.Logger
}

// NewRefresher creates a new Refresher
func NewRefresher(
	repo credential.Repository,
	tokens downstream.TokenClient,
	authenticator storeapi.Authenticator,
	cfg config.SweepConfig,
	logger *zap.Logger,
) *Refresher {
	return &Refresher{
		repo:          repo,
		tokens:        tokens,
		authenticator: authenticator,
		cfg:           cfg,
		logger:        logger.Named("credential-refresher"),
	}
}

// RunPlatform executes one refresh pass over a single platform. Each
// platform runs on its own cadence.
func (r *Refresher) RunPlatform(ctx context.Context, platform credential.Platform) {
	now := time.Now()
	creds, err := r.repo.FindExpiring(ctx, platform, now.Add(r.cfg.TokenRefreshHorizon), r.cfg.TokenRefreshBatch)
	if err != nil {
		r.logger.Error("failed to find expiring credentials",
			zap.String("platform", platform.String()),
			zap.Error(err))
		return
	}
	if len(creds) == 0 {
		return
	}

	r.logger.Info("refreshing credentials",
		zap.String("platform", platform.String()),
		zap.Int("count", len(creds)))

	for i, cred := range creds {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && !sleep(ctx, r.cfg.TokenRefreshStagger) {
			return
		}
		if err := r.refreshOne(ctx, cred); err != nil {
			r.logger.Warn("credential refresh failed",
				zap.Int64("store_id", cred.StoreID),
				zap.String("platform", cred.Platform.String()),
				zap.Error(err))
		}
	}
}

// refreshOne renews a single credential. OAuth pairs use the refresh_token
// grant; API-key sessions are re-derived from their stored key.
func (r *Refresher) refreshOne(ctx context.Context, cred *credential.Credential) error {
	now := time.Now()

	if cred.Refreshable() {
		token, err := r.tokens.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return err
		}
		return r.repo.Upsert(ctx, cred.StoreID, cred.Platform, credential.Fields{
			ExternalStoreID: token.ExternalStoreID,
			AccessToken:     token.AccessToken,
			RefreshToken:    token.RefreshToken,
			ExpiresAt:       token.ExpiresAt,
			LastRefreshAt:   now,
		})
	}

	if cred.APIKey == "" {
		return credential.ErrNotRefreshable
	}
	session, err := r.authenticator.Authenticate(ctx, cred.AuthenticationID, cred.APIKey)
	if err != nil {
		return err
	}
	return r.repo.Upsert(ctx, cred.StoreID, cred.Platform, credential.Fields{
		AccessToken:   session.AccessToken,
		ExpiresAt:     session.ExpiresAt,
		LastRefreshAt: now,
	})
}

// RunRetention prunes credentials whose expiry is long past, meaning the
// store uninstalled or abandoned the integration. Pruning only starts once
// a platform's table outgrows what ten refresh batches can visit; below
// that every credential still gets swept in time.
func (r *Refresher) RunRetention(ctx context.Context) {
	cutoff := time.Now().Add(-r.cfg.TokenRetentionAge)
	capacity := int64(r.cfg.TokenRefreshBatch) * 10
	for _, platform := range []credential.Platform{credential.PlatformMartan, credential.PlatformEcomplus} {
		count, err := r.repo.CountByPlatform(ctx, platform)
		if err != nil {
			r.logger.Error("failed to count credentials",
				zap.String("platform", platform.String()),
				zap.Error(err))
			continue
		}
		if count < capacity {
			continue
		}
		deleted, err := r.repo.DeleteExpiredBefore(ctx, platform, cutoff, r.cfg.TokenRetentionBatch)
		if err != nil {
			r.logger.Error("failed to prune expired credentials",
				zap.String("platform", platform.String()),
				zap.Error(err))
			continue
		}
		if deleted > 0 {
			r.logger.Info("pruned expired credentials",
				zap.String("platform", platform.String()),
				zap.Int64("count", deleted))
		}
	}
}

// sleep waits for d or until the context ends. Returns false on cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
