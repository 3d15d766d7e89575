package cart

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lapstore/server/internal/module/catalog"
	"github.com/lapstore/server/internal/shared/response"
	"github.com/lapstore/server/internal/utils/middleware"
)

// Handler handles HTTP requests for the cart.
type Handler struct {
	service *Service
}

// NewHandler creates a new cart handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers the cart routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	carts := r.Group("/cart")
	{
		carts.GET("", h.Get)
		carts.POST("/items", h.AddItem)
		carts.PUT("/items/:productId", h.UpdateItem)
		carts.DELETE("/items/:productId", h.RemoveItem)
	}
}

var errorMappings = []response.ErrorMapping{
	{Err: ErrItemNotFound, Status: http.StatusNotFound, Code: "CART_ITEM_NOT_FOUND"},
	{Err: ErrInvalidQuantity, Status: http.StatusBadRequest, Code: "INVALID_QUANTITY"},
	{Err: catalog.ErrProductNotFound, Status: http.StatusNotFound, Code: "PRODUCT_NOT_FOUND"},
}

// Get returns the user's cart.
func (h *Handler) Get(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	view, err := h.service.Get(c.Request.Context(), userID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.JSON(http.StatusOK, view)
}

// AddItemRequest is the payload for adding a product to the cart.
type AddItemRequest struct {
	ProductID uuid.UUID `json:"product_id" binding:"required"`
	Quantity  int       `json:"quantity" binding:"required,min=1"`
}

// AddItem adds a product to the cart.
func (h *Handler) AddItem(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.AddItem(c.Request.Context(), userID, req.ProductID, req.Quantity); err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.Status(http.StatusNoContent)
}

// UpdateItemRequest is the payload for changing an item quantity.
type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"min=0"`
}

// UpdateItem sets an item's quantity; zero removes it.
func (h *Handler) UpdateItem(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		response.BadRequest(c, "invalid product ID")
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.service.UpdateItem(c.Request.Context(), userID, productID, req.Quantity); err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveItem removes a product from the cart.
func (h *Handler) RemoveItem(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	productID, err := uuid.Parse(c.Param("productId"))
	if err != nil {
		response.BadRequest(c, "invalid product ID")
		return
	}

	if err := h.service.RemoveItem(c.Request.Context(), userID, productID); err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.Status(http.StatusNoContent)
}
