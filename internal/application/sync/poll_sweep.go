package sync

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/credential"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/infrastructure/storeapi"
)

// PollSweep catches orders whose webhook delivery was lost. It walks the
// recently active stores and ingests any paid, delivered order inside the
// lookback window that carries no sync marker yet.
type PollSweep struct {
	credentials  credential.Repository
	clients      ClientFactory
	orchestrator *Orchestrator
	cfg          config.SweepConfig
	logger       *zap.Logger
}

// NewPollSweep creates a new PollSweep
func NewPollSweep(
	credentials credential.Repository,
	clients ClientFactory,
	orchestrator *Orchestrator,
	cfg config.SweepConfig,
	logger *zap.Logger,
) *PollSweep {
	return &PollSweep{
		credentials:  credentials,
		clients:      clients,
		orchestrator: orchestrator,
		cfg:          cfg,
		logger:       logger.Named("poll-sweep"),
	}
}

// Run executes one sweep over the recently active stores of one platform
// variant. Each variant runs on its own cadence.
func (s *PollSweep) Run(ctx context.Context, variant syncdomain.Variant) {
	now := time.Now()
	storeIDs, err := s.credentials.ListActiveStoreIDs(ctx, credential.PlatformEcomplus, now.Add(-s.cfg.StoreActiveWindow))
	if err != nil {
		s.logger.Error("failed to list active stores", zap.Error(err))
		return
	}
	if len(storeIDs) == 0 {
		return
	}

	// random order spreads the load when sweeps overlap across replicas
	rand.Shuffle(len(storeIDs), func(i, j int) {
		storeIDs[i], storeIDs[j] = storeIDs[j], storeIDs[i]
	})

	s.logger.Info("poll sweep started",
		zap.String("variant", variant.String()),
		zap.Int("store_count", len(storeIDs)))

	for i, storeID := range storeIDs {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && !sleep(ctx, s.cfg.InterStoreDelay) {
			return
		}
		s.sweepStore(ctx, storeID, variant, now)
	}
}

// sweepStore lists and ingests the unsynced delivered orders of one store
func (s *PollSweep) sweepStore(ctx context.Context, storeID int64, variant syncdomain.Variant, now time.Time) {
	cred, err := s.credentials.Get(ctx, storeID, credential.PlatformEcomplus)
	if err != nil || !cred.Usable(now) {
		s.logger.Warn("skipping store without usable credential", zap.Int64("store_id", storeID))
		return
	}
	if variantFor(cred) != variant {
		return
	}
	client := s.clients.ForStore(clientCredentials(storeID, cred))

	window := storeapi.ListWindow{
		From: now.Add(-s.cfg.OrderPollWindowFrom),
		To:   now.Add(-s.cfg.OrderPollWindowTo),
	}
	orders, err := client.ListUnsyncedDeliveredOrders(ctx, window, s.cfg.OrderPollLimit)
	if err != nil {
		s.logger.Error("failed to list delivered orders",
			zap.Int64("store_id", storeID),
			zap.Error(err))
		return
	}

	ingested := 0
	for i, order := range orders {
		if ctx.Err() != nil {
			return
		}
		if i > 0 && !sleep(ctx, s.cfg.InterOrderDelay) {
			return
		}

		raw, err := json.Marshal(order)
		if err != nil {
			s.logger.Error("failed to encode order",
				zap.String("order_id", order.ID),
				zap.Error(err))
			continue
		}
		outcome, err := s.orchestrator.Ingest(ctx, storeID, order.ID, raw)
		if err != nil {
			s.logger.Error("failed to ingest polled order",
				zap.String("order_id", order.ID),
				zap.Int64("store_id", storeID),
				zap.Error(err))
			continue
		}
		if outcome == OutcomeEnqueued {
			ingested++
		}
	}

	if ingested > 0 {
		s.logger.Info("poll sweep ingested orders",
			zap.Int64("store_id", storeID),
			zap.Int("count", ingested))
	}
}
