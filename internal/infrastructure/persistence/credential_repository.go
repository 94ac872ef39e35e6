package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/credential"
	"github.com/ordersync/backend/internal/domain/shared"
)

// GormCredentialRepository implements credential.Repository using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Get finds the credential for a store on a platform
func (r *GormCredentialRepository) Get(ctx context.Context, storeID int64, platform credential.Platform) (*credential.Credential, error) {
	var cred credential.Credential
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND platform = ?", storeID, platform).
		First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &cred, nil
}

// Upsert inserts or merge-updates the credential for (store_id, platform).
// Runs in a transaction so concurrent installs for the same store never
// produce two rows.
func (r *GormCredentialRepository) Upsert(ctx context.Context, storeID int64, platform credential.Platform, fields credential.Fields) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cred credential.Credential
		err := tx.Where("store_id = ? AND platform = ?", storeID, platform).
			First(&cred).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			cred = credential.Credential{StoreID: storeID, Platform: platform}
		}

		applyFields(&cred, fields)
		return tx.Save(&cred).Error
	})
}

// applyFields merges non-zero fields into the credential
func applyFields(cred *credential.Credential, fields credential.Fields) {
	if fields.ExternalStoreID != "" {
		cred.ExternalStoreID = fields.ExternalStoreID
	}
	if fields.AccessToken != "" {
		cred.AccessToken = fields.AccessToken
	}
	if fields.RefreshToken != "" {
		cred.RefreshToken = fields.RefreshToken
	}
	if fields.AuthenticationID != "" {
		cred.AuthenticationID = fields.AuthenticationID
	}
	if fields.APIKey != "" {
		cred.APIKey = fields.APIKey
	}
	if !fields.ExpiresAt.IsZero() {
		cred.ExpiresAt = fields.ExpiresAt
	}
	if !fields.LastRefreshAt.IsZero() {
		cred.LastRefreshAt = fields.LastRefreshAt
	}
}

// FindExpiring finds credentials whose expiry falls inside the horizon,
// stalest first
func (r *GormCredentialRepository) FindExpiring(ctx context.Context, platform credential.Platform, horizon time.Time, limit int) ([]*credential.Credential, error) {
	var creds []*credential.Credential
	if err := r.db.WithContext(ctx).
		Where("platform = ? AND expires_at < ?", platform, horizon).
		Order("updated_at ASC").
		Limit(limit).
		Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

// DeleteExpiredBefore removes credentials whose expiry predates the cutoff
func (r *GormCredentialRepository) DeleteExpiredBefore(ctx context.Context, platform credential.Platform, cutoff time.Time, limit int) (int64, error) {
	subQuery := r.db.Model(&credential.Credential{}).
		Select("id").
		Where("platform = ? AND expires_at < ?", platform, cutoff).
		Order("expires_at ASC").
		Limit(limit)

	result := r.db.WithContext(ctx).
		Where("id IN (?)", subQuery).
		Delete(&credential.Credential{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CountByPlatform counts stored credentials on a platform
func (r *GormCredentialRepository) CountByPlatform(ctx context.Context, platform credential.Platform) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&credential.Credential{}).
		Where("platform = ?", platform).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// ListActiveStoreIDs lists distinct store ids refreshed after the cutoff
func (r *GormCredentialRepository) ListActiveStoreIDs(ctx context.Context, platform credential.Platform, updatedAfter time.Time) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).
		Model(&credential.Credential{}).
		Where("platform = ? AND updated_at > ?", platform, updatedAfter).
		Order("store_id ASC").
		Pluck("store_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Ensure GormCredentialRepository implements credential.Repository
var _ credential.Repository = (*GormCredentialRepository)(nil)
