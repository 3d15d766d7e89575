package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/shared/response"
)

// Handler exposes payment attempt history to operators.
type Handler struct {
	service *Service
	logger  *zap.Logger
}

// NewHandler creates a new payment handler.
func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterAdminRoutes registers the admin payment routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/orders/:id/payments", h.ListAttempts)
}

// ListAttempts returns every payment attempt recorded for an order,
// newest first.
func (h *Handler) ListAttempts(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order id")
		return
	}

	attempts, err := h.service.ListAttempts(c.Request.Context(), orderID)
	if err != nil {
		h.logger.Error("failed to list payment attempts", zap.Error(err))
		response.InternalError(c, "failed to list payments")
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": attempts})
}
