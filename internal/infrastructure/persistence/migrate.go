package persistence

import (
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/credential"
	"github.com/ordersync/backend/internal/domain/sync"
)

// AutoMigrate creates or updates the schema for every persisted model.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&sync.Record{},
		&sync.ErrorRecord{},
		&credential.Credential{},
		&credential.AuthChallenge{},
	)
}
