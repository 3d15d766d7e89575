package catalog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lapstore/server/internal/shared/response"
	"github.com/lapstore/server/internal/utils/middleware"
)

// Handler handles HTTP requests for products and stock administration.
type Handler struct {
	service *Service
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers public product routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	products := r.Group("/products")
	{
		products.GET("/:id", h.GetProduct)
	}
}

// RegisterAdminRoutes registers admin-only product and stock routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	products := r.Group("/products")
	{
		products.POST("", h.CreateProduct)
		products.POST("/:id/stock", h.UpdateStock)
		products.GET("/:id/movements", h.ListMovements)
	}
}

var errorMappings = []response.ErrorMapping{
	{Err: ErrProductNotFound, Status: http.StatusNotFound, Code: "PRODUCT_NOT_FOUND"},
	{Err: ErrInsufficientStock, Status: http.StatusConflict, Code: "INSUFFICIENT_STOCK"},
	{Err: ErrInvalidQuantity, Status: http.StatusBadRequest, Code: "INVALID_QUANTITY"},
}

// GetProduct returns a product by ID.
func (h *Handler) GetProduct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid product ID")
		return
	}

	product, err := h.service.GetProduct(c.Request.Context(), id)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}

	c.JSON(http.StatusOK, product)
}

// CreateProductRequest is the payload for creating a product.
type CreateProductRequest struct {
	Name       string    `json:"name" binding:"required"`
	SKU        string    `json:"sku" binding:"required"`
	CategoryID uuid.UUID `json:"category_id"`
	Price      int64     `json:"price" binding:"min=0"`
	Stock      int       `json:"stock" binding:"min=0"`
	MinStock   int       `json:"min_stock" binding:"min=0"`
}

// CreateProduct creates a new product.
func (h *Handler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	product := &Product{
		Name:       req.Name,
		SKU:        req.SKU,
		CategoryID: req.CategoryID,
		Price:      req.Price,
		Stock:      req.Stock,
		MinStock:   req.MinStock,
		Active:     true,
	}
	if err := h.service.CreateProduct(c.Request.Context(), product); err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}

	c.JSON(http.StatusCreated, product)
}

// UpdateStockRequest is the payload for a manual stock change.
type UpdateStockRequest struct {
	Type     MovementType `json:"type" binding:"required,oneof=restock adjustment"`
	Quantity int          `json:"quantity"`
	Reason   string       `json:"reason"`
}

// UpdateStock applies a restock or an absolute stock adjustment.
// For restock, quantity is the amount added; for adjustment, quantity is
// the new absolute stock level.
func (h *Handler) UpdateStock(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid product ID")
		return
	}

	var req UpdateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	actorID := middleware.UserID(c)

	var product *Product
	switch req.Type {
	case MovementRestock:
		product, err = h.service.Restock(c.Request.Context(), id, req.Quantity, req.Reason, actorID)
	case MovementAdjustment:
		product, err = h.service.AdjustStock(c.Request.Context(), id, req.Quantity, req.Reason, actorID)
	}
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}

	c.JSON(http.StatusOK, product)
}

// ListMovements returns recent stock movements for a product.
func (h *Handler) ListMovements(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid product ID")
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	movements, err := h.service.ListMovements(c.Request.Context(), id, limit)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}

	c.JSON(http.StatusOK, gin.H{"movements": movements})
}
