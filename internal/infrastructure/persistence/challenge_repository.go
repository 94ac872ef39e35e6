package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ordersync/backend/internal/domain/credential"
	"github.com/ordersync/backend/internal/domain/shared"
)

// GormChallengeRepository implements credential.ChallengeRepository using GORM
type GormChallengeRepository struct {
	db *gorm.DB
}

// NewGormChallengeRepository creates a new GormChallengeRepository
func NewGormChallengeRepository(db *gorm.DB) *GormChallengeRepository {
	return &GormChallengeRepository{db: db}
}

// Save stores the challenge for a store, replacing any previous one
func (r *GormChallengeRepository) Save(ctx context.Context, challenge *credential.AuthChallenge) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "store_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"code_verifier", "created_at"}),
		}).
		Create(challenge).Error
}

// Take returns the challenge for a store and deletes it. The delete runs in
// the same transaction so a verifier is never consumed twice.
func (r *GormChallengeRepository) Take(ctx context.Context, storeID int64) (*credential.AuthChallenge, error) {
	var challenge credential.AuthChallenge
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("store_id = ?", storeID).
			First(&challenge).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return shared.ErrNotFound
			}
			return err
		}
		return tx.Delete(&credential.AuthChallenge{}, "store_id = ?", storeID).Error
	})
	if err != nil {
		return nil, err
	}
	return &challenge, nil
}

// Ensure GormChallengeRepository implements credential.ChallengeRepository
var _ credential.ChallengeRepository = (*GormChallengeRepository)(nil)
