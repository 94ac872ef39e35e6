package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ordersync/backend/internal/infrastructure/persistence"
)

// HealthHandler reports service liveness and dependency health
type HealthHandler struct {
	db    *persistence.Database
	redis *redis.Client
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *persistence.Database, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redisClient}
}

// RegisterRoutes registers the health routes
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/healthz", h.Check)
}

type healthData struct {
	Database string `json:"database"`
	Redis    string `json:"redis,omitempty"`
}

// Check pings the dependencies and reports per-component status
func (h *HealthHandler) Check(c *gin.Context) {
	data := healthData{Database: "ok"}
	healthy := true

	if err := h.db.Ping(); err != nil {
		data.Database = "unreachable"
		healthy = false
	}

	if h.redis != nil {
		data.Redis = "ok"
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			data.Redis = "unreachable"
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, APIResponse[healthData]{Success: healthy, Data: data})
}
