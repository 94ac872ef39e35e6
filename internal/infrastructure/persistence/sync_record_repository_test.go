package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/ordersync/backend/internal/domain/shared"
	"github.com/ordersync/backend/internal/domain/sync"
)

func setupSyncTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&sync.Record{}, &sync.ErrorRecord{})
	require.NoError(t, err)

	return db
}

func mustNewRecord(t *testing.T, orderID string, storeID int64) *sync.Record {
	record, err := sync.NewRecord(orderID, storeID, sync.VariantStandard)
	require.NoError(t, err)
	return record
}

func TestSyncRecordRepository_Create(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	t.Run("creates a pending record", func(t *testing.T) {
		record := mustNewRecord(t, "order-1", 100)

		err := repo.Create(ctx, record)
		require.NoError(t, err)

		found, err := repo.FindByOrderID(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, sync.StatePending, found.State)
		assert.Equal(t, int64(100), found.StoreID)
		assert.Equal(t, sync.VariantStandard, found.Variant)
		assert.Equal(t, 0, found.RetryCount)
	})

	t.Run("rejects a second record for the same order", func(t *testing.T) {
		first := mustNewRecord(t, "order-2", 100)
		require.NoError(t, repo.Create(ctx, first))

		second := mustNewRecord(t, "order-2", 100)
		err := repo.Create(ctx, second)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	})
}

func TestSyncRecordRepository_FindByOrderID(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	t.Run("returns not found for unknown order", func(t *testing.T) {
		_, err := repo.FindByOrderID(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestSyncRecordRepository_SavePayload(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	record := mustNewRecord(t, "order-3", 100)
	require.NoError(t, repo.Create(ctx, record))

	payload := []byte(`{"order_id":"order-3","products":[]}`)
	err := repo.SavePayload(ctx, "order-3", payload)
	require.NoError(t, err)

	found, err := repo.FindByOrderID(ctx, "order-3")
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(found.Payload))

	t.Run("returns not found for unknown order", func(t *testing.T) {
		err := repo.SavePayload(ctx, "missing", payload)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestSyncRecordRepository_SaveState(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	t.Run("persists a terminal failure with its code", func(t *testing.T) {
		record := mustNewRecord(t, "order-4", 100)
		require.NoError(t, repo.Create(ctx, record))

		require.NoError(t, record.MarkFailed(802030))
		require.NoError(t, repo.SaveState(ctx, record))

		found, err := repo.FindByOrderID(ctx, "order-4")
		require.NoError(t, err)
		assert.Equal(t, sync.StateFailed, found.State)
		require.NotNil(t, found.FailureCode)
		assert.Equal(t, 802030, *found.FailureCode)
	})

	t.Run("persists retry count without touching payload", func(t *testing.T) {
		record := mustNewRecord(t, "order-5", 100)
		require.NoError(t, repo.Create(ctx, record))
		require.NoError(t, repo.SavePayload(ctx, "order-5", []byte(`{"order_id":"order-5"}`)))

		require.NoError(t, record.MarkRetry())
		require.NoError(t, repo.SaveState(ctx, record))

		found, err := repo.FindByOrderID(ctx, "order-5")
		require.NoError(t, err)
		assert.Equal(t, sync.StatePending, found.State)
		assert.Equal(t, 1, found.RetryCount)
		assert.NotEmpty(t, found.Payload)
	})
}

func TestSyncRecordRepository_FindStalePending(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	now := time.Now()
	stale := mustNewRecord(t, "stale-1", 100)
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, db.Model(&sync.Record{}).
		Where("order_id = ?", "stale-1").
		Update("created_at", now.Add(-72*time.Hour)).Error)

	fresh := mustNewRecord(t, "fresh-1", 100)
	require.NoError(t, repo.Create(ctx, fresh))

	done := mustNewRecord(t, "done-1", 100)
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, done.MarkSynchronized())
	require.NoError(t, repo.SaveState(ctx, done))
	require.NoError(t, db.Model(&sync.Record{}).
		Where("order_id = ?", "done-1").
		Update("created_at", now.Add(-72*time.Hour)).Error)

	records, err := repo.FindStalePending(ctx, now.Add(-48*time.Hour), 50)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "stale-1", records[0].OrderID)
}

func TestSyncRecordRepository_DeleteFailedBefore(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRecordRepository(db)
	ctx := context.Background()

	now := time.Now()
	for _, orderID := range []string{"old-fail-1", "old-fail-2"} {
		record := mustNewRecord(t, orderID, 100)
		require.NoError(t, repo.Create(ctx, record))
		require.NoError(t, record.MarkFailed(520))
		require.NoError(t, repo.SaveState(ctx, record))
		require.NoError(t, db.Model(&sync.Record{}).
			Where("order_id = ?", orderID).
			Update("updated_at", now.Add(-31*24*time.Hour)).Error)
	}

	recent := mustNewRecord(t, "recent-fail", 100)
	require.NoError(t, repo.Create(ctx, recent))
	require.NoError(t, recent.MarkFailed(520))
	require.NoError(t, repo.SaveState(ctx, recent))

	deleted, err := repo.DeleteFailedBefore(ctx, now.Add(-30*24*time.Hour), 80)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	_, err = repo.FindByOrderID(ctx, "recent-fail")
	assert.NoError(t, err)
}

func TestSyncErrorRepository_Save(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncErrorRepository(db)
	ctx := context.Background()

	t.Run("stores the failure body", func(t *testing.T) {
		err := repo.Save(ctx, &sync.ErrorRecord{
			OrderID: "order-9",
			StoreID: 100,
			Body:    `{"error_code":520}`,
		})
		require.NoError(t, err)

		found, err := repo.FindByOrderID(ctx, "order-9")
		require.NoError(t, err)
		assert.Equal(t, int64(100), found.StoreID)
		assert.False(t, found.Retried)
	})

	t.Run("overwrites the previous failure for the same order", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, &sync.ErrorRecord{
			OrderID: "order-10",
			StoreID: 100,
			Body:    "first",
		}))
		require.NoError(t, repo.Save(ctx, &sync.ErrorRecord{
			OrderID: "order-10",
			StoreID: 100,
			Body:    "second",
			Retried: true,
		}))

		found, err := repo.FindByOrderID(ctx, "order-10")
		require.NoError(t, err)
		assert.Equal(t, "second", found.Body)
		assert.True(t, found.Retried)

		var count int64
		require.NoError(t, db.Model(&sync.ErrorRecord{}).
			Where("order_id = ?", "order-10").
			Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})

	t.Run("returns not found for unknown order", func(t *testing.T) {
		_, err := repo.FindByOrderID(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}
