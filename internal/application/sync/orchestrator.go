package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ordersync/backend/internal/domain/credential"
	"github.com/ordersync/backend/internal/domain/shared"
	syncdomain "github.com/ordersync/backend/internal/domain/sync"
	"github.com/ordersync/backend/internal/infrastructure/downstream"
	"github.com/ordersync/backend/internal/infrastructure/queue"
	"github.com/ordersync/backend/internal/infrastructure/storeapi"
)

// ClientFactory builds per-store source API clients.
type ClientFactory interface {
	ForStore(creds storeapi.Credentials) storeapi.Client
}

// IngestOutcome describes what ingestion did with a delivered order.
type IngestOutcome string

const (
	// OutcomeEnqueued means a new sync record was created and queued.
	OutcomeEnqueued IngestOutcome = "enqueued"
	// OutcomeSkippedNotDelivered means the order has not been delivered yet.
	OutcomeSkippedNotDelivered IngestOutcome = "skipped_not_delivered"
	// OutcomeSkippedNoCredentials means no usable source credential exists
	// for the store.
	OutcomeSkippedNoCredentials IngestOutcome = "skipped_no_credentials"
	// OutcomeAlreadyTracked means a record for the order already exists.
	OutcomeAlreadyTracked IngestOutcome = "already_tracked"
	// OutcomeAlreadySynchronized means the order was relayed before; the
	// source marker is repaired if a previous write was lost.
	OutcomeAlreadySynchronized IngestOutcome = "already_synchronized"
)

// Orchestrator coordinates the order relay: ingestion of delivered orders,
// enrichment, submission downstream and state classification.
type Orchestrator struct {
	records     syncdomain.RecordRepository
	errors      syncdomain.ErrorRepository
	credentials credential.Repository
	clients     ClientFactory
	sender      downstream.OrderSender
	queue       queue.Queue
	enricher    *Enricher
	logger      *zap.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	records syncdomain.RecordRepository,
	errorRepo syncdomain.ErrorRepository,
	credentials credential.Repository,
	clients ClientFactory,
	sender downstream.OrderSender,
	q queue.Queue,
	enricher *Enricher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		records:     records,
		errors:      errorRepo,
		credentials: credentials,
		clients:     clients,
		sender:      sender,
		queue:       q,
		enricher:    enricher,
		logger:      logger.Named("orchestrator"),
	}
}

// Ingest accepts an order notification, creates its sync record and queues
// a submission task. Notifications either carry the full order body or just
// the order id; reference-only notifications fetch the order from the
// source API. Exactly one record per order id: repeated deliveries of the
// same order are no-ops.
func (o *Orchestrator) Ingest(ctx context.Context, storeID int64, orderID string, rawOrder json.RawMessage) (IngestOutcome, error) {
	var order *storeapi.Order
	if len(rawOrder) > 0 {
		var decoded storeapi.Order
		if err := json.Unmarshal(rawOrder, &decoded); err != nil {
			return "", fmt.Errorf("decode order body: %w", err)
		}
		order = &decoded
		orderID = decoded.ID
	}
	if orderID == "" {
		return "", syncdomain.ErrMissingOrderID
	}

	if order != nil && !order.Delivered() {
		return OutcomeSkippedNotDelivered, nil
	}

	existing, err := o.records.FindByOrderID(ctx, orderID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return "", err
	}
	if existing != nil {
		if existing.State == syncdomain.StateSynchronized {
			// a lost marker write leaves the source unannotated; repair it
			o.writeMarker(ctx, storeID, orderID, storeapi.MarkerSynchronized)
			return OutcomeAlreadySynchronized, nil
		}
		return OutcomeAlreadyTracked, nil
	}

	cred, err := o.sourceCredential(ctx, storeID)
	if err != nil {
		if errors.Is(err, syncdomain.ErrMissingAuthentication) {
			o.logger.Warn("skipping order, no usable source credential",
				zap.String("order_id", orderID),
				zap.Int64("store_id", storeID))
			return OutcomeSkippedNoCredentials, nil
		}
		return "", err
	}

	if order == nil {
		client := o.clients.ForStore(clientCredentials(storeID, cred))
		fetched, err := client.GetOrder(ctx, orderID)
		if err != nil {
			return "", fmt.Errorf("fetch order %s: %w", orderID, err)
		}
		if !fetched.Delivered() {
			return OutcomeSkippedNotDelivered, nil
		}
		order = fetched
	}

	record, err := syncdomain.NewRecord(orderID, storeID, variantFor(cred))
	if err != nil {
		return "", err
	}
	if err := o.records.Create(ctx, record); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			return OutcomeAlreadyTracked, nil
		}
		return "", err
	}

	msg := queue.NewMessage(record.OrderID, record.StoreID, record.Variant, rawOrder)
	if err := o.queue.Publish(ctx, msg); err != nil {
		return "", fmt.Errorf("enqueue submission task: %w", err)
	}

	o.logger.Info("order ingested",
		zap.String("order_id", record.OrderID),
		zap.Int64("store_id", record.StoreID),
		zap.String("variant", record.Variant.String()))
	return OutcomeEnqueued, nil
}

// ProcessMessage is the queue handler. It enriches the order, submits it
// downstream and classifies the result. A returned error redelivers the
// message; a nil return settles it.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg *queue.Message) error {
	record, err := o.records.FindByOrderID(ctx, msg.OrderID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			o.logger.Warn("dropping task for unknown record", zap.String("order_id", msg.OrderID))
			return nil
		}
		return err
	}
	if record.State.IsTerminal() {
		return nil
	}

	cred, err := o.sourceCredential(ctx, record.StoreID)
	if err != nil {
		if errors.Is(err, syncdomain.ErrMissingAuthentication) {
			// stays pending; the re-drive sweep retries once a credential
			// shows up again
			o.logger.Warn("leaving order pending, no usable source credential",
				zap.String("order_id", record.OrderID),
				zap.Int64("store_id", record.StoreID))
			return nil
		}
		return err
	}
	client := o.clients.ForStore(clientCredentials(record.StoreID, cred))

	order, err := o.loadOrder(ctx, client, msg)
	if err != nil {
		return fmt.Errorf("load order %s: %w", msg.OrderID, err)
	}

	payload, err := o.enricher.Enrich(ctx, client, order)
	if err != nil {
		return fmt.Errorf("enrich order %s: %w", msg.OrderID, err)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	if err := o.records.SavePayload(ctx, record.OrderID, encoded); err != nil {
		return err
	}

	martan, err := o.credentials.Get(ctx, record.StoreID, credential.PlatformMartan)
	if err != nil || !martan.Usable(time.Now()) {
		o.logger.Warn("leaving order pending, no usable destination credential",
			zap.String("order_id", record.OrderID),
			zap.Int64("store_id", record.StoreID))
		return nil
	}

	sendErr := o.sender.PostOrder(ctx, downstream.Credentials{
		ExternalStoreID: martan.ExternalStoreID,
		AccessToken:     martan.AccessToken,
	}, payload)

	return o.classify(ctx, client, record, sendErr)
}

// classify maps the submission result onto the record state machine
func (o *Orchestrator) classify(ctx context.Context, client storeapi.Client, record *syncdomain.Record, sendErr error) error {
	if sendErr == nil {
		return o.settleSynchronized(ctx, client, record)
	}

	var apiErr *downstream.APIError
	if !errors.As(sendErr, &apiErr) {
		// transport failure, retry later
		if err := record.MarkRetry(); err != nil {
			return err
		}
		if err := o.records.SaveState(ctx, record); err != nil {
			return err
		}
		return sendErr
	}

	switch {
	case apiErr.IsDuplicate():
		// the destination already has the order
		return o.settleSynchronized(ctx, client, record)

	case apiErr.IsCritical():
		if err := record.MarkFailed(apiErr.ErrorCode); err != nil {
			return err
		}
		if err := o.records.SaveState(ctx, record); err != nil {
			return err
		}
		o.saveError(ctx, record, apiErr)
		o.writeMarkerWith(ctx, client, record.OrderID, storeapi.MarkerFailed)
		o.logger.Error("order rejected permanently",
			zap.String("order_id", record.OrderID),
			zap.Int("error_code", apiErr.ErrorCode))
		return nil

	default:
		if err := record.MarkRetry(); err != nil {
			return err
		}
		if err := o.records.SaveState(ctx, record); err != nil {
			return err
		}
		o.saveError(ctx, record, apiErr)
		return apiErr
	}
}

func (o *Orchestrator) settleSynchronized(ctx context.Context, client storeapi.Client, record *syncdomain.Record) error {
	if err := record.MarkSynchronized(); err != nil {
		return err
	}
	if err := o.records.SaveState(ctx, record); err != nil {
		return err
	}
	o.writeMarkerWith(ctx, client, record.OrderID, storeapi.MarkerSynchronized)
	o.logger.Info("order synchronized",
		zap.String("order_id", record.OrderID),
		zap.Int64("store_id", record.StoreID))
	return nil
}

// loadOrder uses the webhook body when the task carries one, otherwise
// fetches the order from the source API
func (o *Orchestrator) loadOrder(ctx context.Context, client storeapi.Client, msg *queue.Message) (*storeapi.Order, error) {
	if len(msg.RawOrder) > 0 {
		var order storeapi.Order
		if err := json.Unmarshal(msg.RawOrder, &order); err != nil {
			return nil, fmt.Errorf("decode order body: %w", err)
		}
		return &order, nil
	}
	return client.GetOrder(ctx, msg.OrderID)
}

// sourceCredential resolves a usable source-platform credential
func (o *Orchestrator) sourceCredential(ctx context.Context, storeID int64) (*credential.Credential, error) {
	cred, err := o.credentials.Get(ctx, storeID, credential.PlatformEcomplus)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, syncdomain.ErrMissingAuthentication
		}
		return nil, err
	}
	if !cred.Usable(time.Now()) {
		return nil, syncdomain.ErrMissingAuthentication
	}
	return cred, nil
}

// saveError records the latest submission failure for diagnostics
func (o *Orchestrator) saveError(ctx context.Context, record *syncdomain.Record, apiErr *downstream.APIError) {
	err := o.errors.Save(ctx, &syncdomain.ErrorRecord{
		OrderID: record.OrderID,
		StoreID: record.StoreID,
		Body:    apiErr.Body,
	})
	if err != nil {
		o.logger.Error("failed to save error record",
			zap.String("order_id", record.OrderID),
			zap.Error(err))
	}
}

// writeMarker resolves a client for the store and writes the sync marker
func (o *Orchestrator) writeMarker(ctx context.Context, storeID int64, orderID, value string) {
	cred, err := o.sourceCredential(ctx, storeID)
	if err != nil {
		o.logger.Warn("cannot repair sync marker without credentials",
			zap.String("order_id", orderID),
			zap.Int64("store_id", storeID))
		return
	}
	o.writeMarkerWith(ctx, o.clients.ForStore(clientCredentials(storeID, cred)), orderID, value)
}

// writeMarkerWith writes the sync marker metafield, best effort. The record
// state is already persisted; a lost marker only costs a duplicate attempt
// that the dedup check absorbs.
func (o *Orchestrator) writeMarkerWith(ctx context.Context, client storeapi.Client, orderID, value string) {
	if err := client.SetOrderMetafield(ctx, orderID, value); err != nil {
		o.logger.Warn("failed to write sync marker",
			zap.String("order_id", orderID),
			zap.String("value", value),
			zap.Error(err))
	}
}

// variantFor derives the platform variant from the credential shape
func variantFor(cred *credential.Credential) syncdomain.Variant {
	if cred.APIKey != "" {
		return syncdomain.VariantCloudCommerce
	}
	return syncdomain.VariantStandard
}

// clientCredentials maps a stored credential onto API call credentials
func clientCredentials(storeID int64, cred *credential.Credential) storeapi.Credentials {
	creds := storeapi.Credentials{
		StoreID:     storeID,
		AccessToken: cred.AccessToken,
	}
	if cred.APIKey != "" {
		creds.MyID = cred.AuthenticationID
	}
	return creds
}
