package sync

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/ordersync/backend/internal/domain/credential"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/downstream"
	"github.com/ordersync/backend/internal/infrastructure/storeapi"
)

// MockRecordRepository is a mock implementation of sync.RecordRepository
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) Create(ctx context.Context, record *syncdomain.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordRepository) FindByOrderID(ctx context.Context, orderID string) (*syncdomain.Record, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdomain.Record), args.Error(1)
}

func (m *MockRecordRepository) SavePayload(ctx context.Context, orderID string, payload []byte) error {
	args := m.Called(ctx, orderID, payload)
	return args.Error(0)
}

func (m *MockRecordRepository) SaveState(ctx context.Context, record *syncdomain.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockRecordRepository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]*syncdomain.Record, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdomain.Record), args.Error(1)
}

func (m *MockRecordRepository) DeleteFailedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

// MockErrorRepository is a mock implementation of sync.ErrorRepository
type MockErrorRepository struct {
	mock.Mock
}

func (m *MockErrorRepository) Save(ctx context.Context, record *syncdomain.ErrorRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockErrorRepository) FindByOrderID(ctx context.Context, orderID string) (*syncdomain.ErrorRecord, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdomain.ErrorRecord), args.Error(1)
}

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

// MockStoreClient is a mock implementation of storeapi.Client
type MockStoreClient struct {
	mock.Mock
}

func (m *MockStoreClient) GetOrder(ctx context.Context, orderID string) (*storeapi.Order, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storeapi.Order), args.Error(1)
}

func (m *MockStoreClient) ListUnsyncedDeliveredOrders(ctx context.Context, window storeapi.ListWindow, limit int) ([]storeapi.Order, error) {
	args := m.Called(ctx, window, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storeapi.Order), args.Error(1)
}

func (m *MockStoreClient) GetProduct(ctx context.Context, productID string) (*storeapi.Product, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storeapi.Product), args.Error(1)
}

func (m *MockStoreClient) GetStore(ctx context.Context) (*storeapi.Store, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storeapi.Store), args.Error(1)
}

func (m *MockStoreClient) SetOrderMetafield(ctx context.Context, orderID, value string) error {
	args := m.Called(ctx, orderID, value)
	return args.Error(0)
}

// stubClientFactory hands out one fixed client for every store
type stubClientFactory struct {
	client storeapi.Client
}

func (f *stubClientFactory) ForStore(creds storeapi.Credentials) storeapi.Client {
	return f.client
}

// MockOrderSender is a mock implementation of downstream.OrderSender
type MockOrderSender struct {
	mock.Mock
}

func (m *MockOrderSender) PostOrder(ctx context.Context, creds downstream.Credentials, payload *syncdomain.OrderPayload) error {
	args := m.Called(ctx, creds, payload)
	return args.Error(0)
}
