package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appsync "github.com/ordersync/backend/internal/application/sync"
	"github.com/ordersync/backend/internal/infrastructure/logger"
)

// OrderIngestor accepts order notifications for ingestion, either as a full
// order body or as a bare order id.
type OrderIngestor interface {
	Ingest(ctx context.Context, storeID int64, orderID string, rawOrder json.RawMessage) (appsync.IngestOutcome, error)
}

// WebhookHandler receives order event notifications from the source
// platform
type WebhookHandler struct {
	ingestor OrderIngestor
	validate *validator.Validate
	logger   *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(ingestor OrderIngestor, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		validate: validator.New(),
		logger:   log.Named("webhook"),
	}
}

// RegisterRoutes registers the webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/orders", h.HandleOrderEvent)
}

// orderEventRequest is the notification envelope the platform delivers.
// Most events reference the order by id; the body is only present when the
// platform inlines the changed resource.
type orderEventRequest struct {
	StoreID    int64           `json:"store_id" validate:"required,gt=0"`
	Resource   string          `json:"resource" validate:"required"`
	ResourceID string          `json:"resource_id"`
	InsertedID string          `json:"inserted_id"`
	Body       json.RawMessage `json:"body"`
}

// orderID returns the referenced order id, preferring resource_id over
// inserted_id.
func (r *orderEventRequest) orderID() string {
	if r.ResourceID != "" {
		return r.ResourceID
	}
	return r.InsertedID
}

type orderEventData struct {
	Outcome string `json:"outcome"`
}

// HandleOrderEvent ingests a delivered-order notification. Events for other
// resources are acknowledged and ignored so the platform does not retry
// them.
func (h *WebhookHandler) HandleOrderEvent(c *gin.Context) {
	var req orderEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}

	if req.Resource != "orders" {
		respondOK(c, http.StatusOK, orderEventData{Outcome: "ignored"})
		return
	}
	if req.orderID() == "" && len(req.Body) == 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_FAILED", "resource_id, inserted_id or body is required")
		return
	}

	outcome, err := h.ingestor.Ingest(c.Request.Context(), req.StoreID, req.orderID(), req.Body)
	if err != nil {
		logger.GetGinLogger(c).Error("order ingestion failed",
			zap.Int64("store_id", req.StoreID),
			zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INGEST_FAILED", "could not ingest order")
		return
	}

	respondOK(c, http.StatusOK, orderEventData{Outcome: string(outcome)})
}
