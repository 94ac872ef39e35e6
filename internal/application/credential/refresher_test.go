package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/credential"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/downstream"
	"github.com/ordersync/backend/internal/infrastructure/storeapi"
)

// MockCredentialRepository is a mock implementation of credential.Repository
type MockCredentialRepository struct {
	mock.Mock
}

func (m *MockCredentialRepository) Get(ctx context.Context, storeID int64, platform credential.Platform) (*credential.Credential, error) {
	args := m.Called(ctx, storeID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credential.Credential), args.Error(1)
}

func (m *MockCredentialRepository) Upsert(ctx context.Context, storeID int64, platform credential.Platform, fields credential.Fields) error {
	args := m.Called(ctx, storeID, platform, fields)
	return args.Error(0)
}

func (m *MockCredentialRepository) FindExpiring(ctx context.Context, platform credential.Platform, horizon time.Time, limit int) ([]*credential.Credential, error) {
	args := m.Called(ctx, platform, horizon, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*credential.Credential), args.Error(1)
}

func (m *MockCredentialRepository) DeleteExpiredBefore(ctx context.Context, platform credential.Platform, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, platform, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCredentialRepository) CountByPlatform(ctx context.Context, platform credential.Platform) (int64, error) {
	args := m.Called(ctx, platform)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCredentialRepository) ListActiveStoreIDs(ctx context.Context, platform credential.Platform, updatedAfter time.Time) ([]int64, error) {
	args := m.Called(ctx, platform, updatedAfter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

// MockTokenClient is a mock implementation of downstream.TokenClient
type MockTokenClient struct {
	mock.Mock
}

func (m *MockTokenClient) ExchangeCode(ctx context.Context, code, codeVerifier string) (*downstream.Token, error) {
	args := m.Called(ctx, code, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*downstream.Token), args.Error(1)
}

func (m *MockTokenClient) Refresh(ctx context.Context, refreshToken string) (*downstream.Token, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*downstream.Token), args.Error(1)
}

// MockAuthenticator is a mock implementation of storeapi.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Authenticate(ctx context.Context, authenticationID, apiKey string) (*storeapi.Session, error) {
	args := m.Called(ctx, authenticationID, apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storeapi.Session), args.Error(1)
}

func refresherConfig() config.SweepConfig {
	return config.SweepConfig{
		TokenRefreshBatch:   40,
		TokenRefreshHorizon: 16 * time.Hour,
		TokenRefreshStagger: time.Millisecond,
		TokenRetentionAge:   30 * 24 * time.Hour,
		TokenRetentionBatch: 80,
	}
}

func newRefresherFixture() (*Refresher, *MockCredentialRepository, *MockTokenClient, *MockAuthenticator) {
	repo := new(MockCredentialRepository)
	tokens := new(MockTokenClient)
	auth := new(MockAuthenticator)
	refresher := NewRefresher(repo, tokens, auth, refresherConfig(), zap.NewNop())
	return refresher, repo, tokens, auth
}

func TestRefresher_RunPlatform(t *testing.T) {
	ctx := context.Background()

	t.Run("renews an OAuth pair with the refresh grant", func(t *testing.T) {
		refresher, repo, tokens, _ := newRefresherFixture()

		expiring := &credential.Credential{
			StoreID:      100,
			Platform:     credential.PlatformMartan,
			AccessToken:  "old-access",
			RefreshToken: "old-refresh",
			ExpiresAt:    time.Now().Add(10 * time.Hour),
		}
		repo.On("FindExpiring", mock.Anything, credential.PlatformMartan, mock.MatchedBy(func(horizon time.Time) bool {
			return time.Until(horizon) > 15*time.Hour
		}), 40).Return([]*credential.Credential{expiring}, nil)

		renewed := &downstream.Token{
			AccessToken:     "new-access",
			RefreshToken:    "new-refresh",
			ExpiresAt:       time.Now().Add(24 * time.Hour),
			ExternalStoreID: "ext-100",
		}
		tokens.On("Refresh", mock.Anything, "old-refresh").Return(renewed, nil)
		repo.On("Upsert", mock.Anything, int64(100), credential.PlatformMartan, mock.MatchedBy(func(f credential.Fields) bool {
			return f.AccessToken == "new-access" && f.RefreshToken == "new-refresh" &&
				f.ExternalStoreID == "ext-100" && !f.LastRefreshAt.IsZero()
		})).Return(nil)

		refresher.RunPlatform(ctx, credential.PlatformMartan)
		repo.AssertExpectations(t)
		tokens.AssertExpectations(t)
	})

	t.Run("re-derives an API-key session", func(t *testing.T) {
		refresher, repo, _, auth := newRefresherFixture()

		expiring := &credential.Credential{
			StoreID:          100,
			Platform:         credential.PlatformEcomplus,
			AccessToken:      "old-session",
			AuthenticationID: "auth-1",
			APIKey:           "secret",
			ExpiresAt:        time.Now().Add(2 * time.Hour),
		}
		repo.On("FindExpiring", mock.Anything, credential.PlatformEcomplus, mock.Anything, 40).
			Return([]*credential.Credential{expiring}, nil)

		auth.On("Authenticate", mock.Anything, "auth-1", "secret").Return(&storeapi.Session{
			MyID:        "auth-1",
			AccessToken: "new-session",
			ExpiresAt:   time.Now().Add(24 * time.Hour),
		}, nil)
		repo.On("Upsert", mock.Anything, int64(100), credential.PlatformEcomplus, mock.MatchedBy(func(f credential.Fields) bool {
			return f.AccessToken == "new-session"
		})).Return(nil)

		refresher.RunPlatform(ctx, credential.PlatformEcomplus)
		auth.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("a failed refresh does not stop the batch", func(t *testing.T) {
		refresher, repo, tokens, _ := newRefresherFixture()

		first := &credential.Credential{StoreID: 1, Platform: credential.PlatformMartan, RefreshToken: "revoked"}
		second := &credential.Credential{StoreID: 2, Platform: credential.PlatformMartan, RefreshToken: "good"}
		repo.On("FindExpiring", mock.Anything, credential.PlatformMartan, mock.Anything, 40).
			Return([]*credential.Credential{first, second}, nil)

		tokens.On("Refresh", mock.Anything, "revoked").
			Return(nil, &downstream.APIError{Status: 401})
		tokens.On("Refresh", mock.Anything, "good").
			Return(&downstream.Token{AccessToken: "a", RefreshToken: "r", ExpiresAt: time.Now().Add(24 * time.Hour)}, nil)
		repo.On("Upsert", mock.Anything, int64(2), credential.PlatformMartan, mock.Anything).Return(nil)

		refresher.RunPlatform(ctx, credential.PlatformMartan)
		tokens.AssertExpectations(t)
		repo.AssertExpectations(t)
	})

	t.Run("a credential with neither grant nor key is reported", func(t *testing.T) {
		refresher, repo, _, _ := newRefresherFixture()

		broken := &credential.Credential{StoreID: 1, Platform: credential.PlatformEcomplus}
		repo.On("FindExpiring", mock.Anything, credential.PlatformEcomplus, mock.Anything, 40).
			Return([]*credential.Credential{broken}, nil)

		// must not panic or upsert
		refresher.RunPlatform(ctx, credential.PlatformEcomplus)
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRefresher_RunRetention(t *testing.T) {
	ctx := context.Background()

	t.Run("prunes platforms at batch capacity", func(t *testing.T) {
		refresher, repo, _, _ := newRefresherFixture()

		// capacity is ten refresh batches, 400 with a batch of 40
		repo.On("CountByPlatform", mock.Anything, credential.PlatformMartan).Return(int64(400), nil)
		repo.On("CountByPlatform", mock.Anything, credential.PlatformEcomplus).Return(int64(512), nil)
		repo.On("DeleteExpiredBefore", mock.Anything, credential.PlatformMartan, mock.MatchedBy(func(cutoff time.Time) bool {
			return time.Since(cutoff) > 29*24*time.Hour
		}), 80).Return(int64(2), nil)
		repo.On("DeleteExpiredBefore", mock.Anything, credential.PlatformEcomplus, mock.Anything, 80).
			Return(int64(0), nil)

		refresher.RunRetention(ctx)
		repo.AssertExpectations(t)
	})

	t.Run("leaves platforms below capacity alone", func(t *testing.T) {
		refresher, repo, _, _ := newRefresherFixture()

		repo.On("CountByPlatform", mock.Anything, credential.PlatformMartan).Return(int64(399), nil)
		repo.On("CountByPlatform", mock.Anything, credential.PlatformEcomplus).Return(int64(12), nil)

		refresher.RunRetention(ctx)
		repo.AssertNotCalled(t, "DeleteExpiredBefore", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestCredentialExpiryWindow(t *testing.T) {
	now := time.Now()

	inside := &credential.Credential{
		ExpiresAt:     now.Add(10 * time.Hour),
		LastRefreshAt: now.Add(-time.Hour),
	}
	outside := &credential.Credential{
		ExpiresAt:     now.Add(20 * time.Hour),
		LastRefreshAt: now.Add(-time.Hour),
	}
	never := &credential.Credential{}

	assert.True(t, inside.ExpiresWithin(now, 16*time.Hour))
	assert.False(t, outside.ExpiresWithin(now, 16*time.Hour))
	assert.True(t, never.ExpiresWithin(now, 16*time.Hour), "never-refreshed credentials count as expiring")
}
