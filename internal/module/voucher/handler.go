package voucher

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lapstore/server/internal/shared/response"
)

// Handler handles HTTP requests for voucher administration.
type Handler struct {
	service *Service
}

// NewHandler creates a new voucher handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterAdminRoutes registers admin-only voucher routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	vouchers := r.Group("/vouchers")
	{
		vouchers.POST("", h.Create)
		vouchers.GET("", h.List)
		vouchers.DELETE("/:id", h.Deactivate)
	}
}

var errorMappings = []response.ErrorMapping{
	{Err: ErrVoucherNotFound, Status: http.StatusNotFound, Code: "VOUCHER_NOT_FOUND"},
	{Err: ErrInvalidVoucher, Status: http.StatusBadRequest, Code: "INVALID_VOUCHER"},
	{Err: ErrDuplicateCode, Status: http.StatusConflict, Code: "DUPLICATE_CODE"},
}

// CreateVoucherRequest is the payload for creating a voucher.
type CreateVoucherRequest struct {
	Code          string       `json:"code" binding:"required"`
	DiscountType  DiscountType `json:"discount_type" binding:"required,oneof=percentage fixed"`
	Value         int64        `json:"value" binding:"required"`
	MinOrderValue int64        `json:"min_order_value"`
	MaxDiscount   int64        `json:"max_discount"`
	Quantity      int          `json:"quantity" binding:"required,min=1"`
	StartDate     time.Time    `json:"start_date" binding:"required"`
	EndDate       time.Time    `json:"end_date" binding:"required"`
	ProductIDs    []uuid.UUID  `json:"product_ids"`
	CategoryIDs   []uuid.UUID  `json:"category_ids"`
	UserIDs       []uuid.UUID  `json:"user_ids"`
}

// Create creates a new voucher.
func (h *Handler) Create(c *gin.Context) {
	var req CreateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	v := &Voucher{
		Code:          req.Code,
		DiscountType:  req.DiscountType,
		Value:         req.Value,
		MinOrderValue: req.MinOrderValue,
		MaxDiscount:   req.MaxDiscount,
		Quantity:      req.Quantity,
		StartDate:     req.StartDate,
		EndDate:       req.EndDate,
		ProductIDs:    req.ProductIDs,
		CategoryIDs:   req.CategoryIDs,
		UserIDs:       req.UserIDs,
		Active:        true,
	}
	if err := h.service.Create(c.Request.Context(), v); err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}

	c.JSON(http.StatusCreated, v)
}

// List returns vouchers; pass ?active=true for active ones only.
func (h *Handler) List(c *gin.Context) {
	activeOnly := c.Query("active") == "true"
	vouchers, err := h.service.List(c.Request.Context(), activeOnly)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.JSON(http.StatusOK, gin.H{"vouchers": vouchers})
}

// Deactivate turns a voucher off.
func (h *Handler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid voucher ID")
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), id); err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.Status(http.StatusNoContent)
}
