package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/techdigits/backend/internal/infrastructure/logger"
	"github.com/techdigits/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Pinger checks a backing store. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability.
type HealthHandler struct {
	db      Pinger
	version string
	timeout time.Duration
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db Pinger, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version, timeout: 2 * time.Second}
}

// Check answers 200 when the database responds and 503 otherwise.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := dto.HealthResponse{Status: "healthy", Database: "connected", Version: h.version}
	status := http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		logger.L(ctx).Warn("Health check database ping failed", zap.Error(err))
		resp.Status, resp.Database = "unhealthy", "disconnected"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}
