package order

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/module/cart"
	"github.com/lapstore/server/internal/module/catalog"
	"github.com/lapstore/server/internal/module/voucher"
	"github.com/lapstore/server/internal/shared/response"
	"github.com/lapstore/server/internal/utils/middleware"
)

// PaymentInitiator creates the gateway payment request for a persisted
// order and returns the client-facing instruction.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, o *Order, clientIP string) (*PaymentInstruction, error)
}

// Handler handles HTTP requests for checkout and orders.
type Handler struct {
	service  *Service
	payments PaymentInitiator
	logger   *zap.Logger
}

// NewHandler creates a new order handler.
func NewHandler(service *Service, payments PaymentInitiator, logger *zap.Logger) *Handler {
	return &Handler{service: service, payments: payments, logger: logger}
}

// RegisterRoutes registers the checkout and order routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/checkout", h.Checkout)

	orders := r.Group("/orders")
	{
		orders.GET("", h.List)
		orders.GET("/:id", h.Get)
		orders.GET("/:id/status", h.GetStatus)
		orders.GET("/:id/timeline", h.GetTimeline)
		orders.POST("/:id/cancel", h.Cancel)
		orders.POST("/:id/pay", h.RetryPayment)
	}
}

// RegisterAdminRoutes registers admin-only order routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/orders/:id/transition", h.Transition)
}

var errorMappings = []response.ErrorMapping{
	{Err: ErrOrderNotFound, Status: http.StatusNotFound, Code: "ORDER_NOT_FOUND"},
	{Err: ErrForbidden, Status: http.StatusForbidden, Code: "FORBIDDEN"},
	{Err: ErrInvalidMethod, Status: http.StatusBadRequest, Code: "INVALID_PAYMENT_METHOD"},
	{Err: ErrInvalidTransition, Status: http.StatusConflict, Code: "INVALID_TRANSITION"},
	{Err: ErrOrderNotCancelable, Status: http.StatusConflict, Code: "NOT_CANCELABLE"},
	{Err: ErrOrderNotPayable, Status: http.StatusConflict, Code: "NOT_PAYABLE"},
	{Err: cart.ErrEmptyCart, Status: http.StatusBadRequest, Code: "EMPTY_CART"},
	{Err: catalog.ErrProductNotFound, Status: http.StatusUnprocessableEntity, Code: "PRODUCT_NOT_FOUND"},
	{Err: catalog.ErrInsufficientStock, Status: http.StatusUnprocessableEntity, Code: "INSUFFICIENT_STOCK"},
	{Err: voucher.ErrVoucherNotFound, Status: http.StatusUnprocessableEntity, Code: "VOUCHER_NOT_FOUND"},
	{Err: voucher.ErrVoucherInactive, Status: http.StatusUnprocessableEntity, Code: "VOUCHER_INACTIVE"},
	{Err: voucher.ErrVoucherNotStarted, Status: http.StatusUnprocessableEntity, Code: "VOUCHER_NOT_STARTED"},
	{Err: voucher.ErrVoucherExpired, Status: http.StatusUnprocessableEntity, Code: "VOUCHER_EXPIRED"},
	{Err: voucher.ErrVoucherExhausted, Status: http.StatusUnprocessableEntity, Code: "VOUCHER_EXHAUSTED"},
	{Err: voucher.ErrMinOrderNotMet, Status: http.StatusUnprocessableEntity, Code: "VOUCHER_MIN_ORDER"},
	{Err: voucher.ErrVoucherNotApplicable, Status: http.StatusUnprocessableEntity, Code: "VOUCHER_NOT_APPLICABLE"},
}

// Checkout creates an order from the user's cart. Gateway methods also
// create the provider payment request; a gateway failure still returns
// the created order so the client can retry the payment.
func (h *Handler) Checkout(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if !ValidMethod(req.PaymentMethod) {
		response.HandleErrorWithDefault(c, ErrInvalidMethod, errorMappings)
		return
	}

	addr := req.ShippingAddress.toAddress()

	if req.PaymentMethod == MethodCash {
		o, err := h.service.CreateCashOrder(c.Request.Context(), userID, addr, req.VoucherCode)
		if err != nil {
			response.HandleErrorWithDefault(c, err, errorMappings)
			return
		}
		c.JSON(http.StatusCreated, CheckoutResponse{Order: o})
		return
	}

	o, err := h.service.CreateGatewayOrder(c.Request.Context(), userID, addr, req.VoucherCode, req.PaymentMethod)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}

	instruction, err := h.payments.InitiatePayment(c.Request.Context(), o, c.ClientIP())
	if err != nil {
		h.logger.Warn("payment request creation failed at checkout",
			zap.Error(err), zap.String("order_id", o.ID.String()))
		c.JSON(http.StatusCreated, CheckoutResponse{
			Order:        o,
			PaymentError: "payment gateway unavailable, retry with POST /orders/:id/pay",
		})
		return
	}

	c.JSON(http.StatusCreated, CheckoutResponse{Order: o, Payment: instruction})
}

// RetryPayment creates a fresh payment request for a retryable order.
func (h *Handler) RetryPayment(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order ID")
		return
	}

	o, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	if o.UserID != userID {
		response.HandleErrorWithDefault(c, ErrForbidden, errorMappings)
		return
	}
	if !o.PaymentMethod.Gateway() {
		response.BadRequest(c, "order is not gateway-paid")
		return
	}
	if o.Status != StatusNew || (o.PaymentStatus != PaymentPending && o.PaymentStatus != PaymentFailed) {
		response.HandleErrorWithDefault(c, ErrOrderNotPayable, errorMappings)
		return
	}

	instruction, err := h.payments.InitiatePayment(c.Request.Context(), o, c.ClientIP())
	if err != nil {
		if response.HandleError(c, err, errorMappings) {
			return
		}
		h.logger.Warn("payment retry failed", zap.Error(err), zap.String("order_id", o.ID.String()))
		response.ErrorWithCode(c, http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "payment gateway unavailable")
		return
	}
	c.JSON(http.StatusOK, CheckoutResponse{Order: o, Payment: instruction})
}

// List returns a page of the user's orders.
func (h *Handler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	var status *Status
	if raw := c.Query("status"); raw != "" {
		s := Status(raw)
		status = &s
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	orders, total, err := h.service.ListOrders(c.Request.Context(), userID, status, page, pageSize)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.JSON(http.StatusOK, ListResponse{Orders: orders, Total: total, Page: page, PageSize: pageSize})
}

// Get returns an order by ID.
func (h *Handler) Get(c *gin.Context) {
	o, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, o)
}

// GetStatus returns the order's current state, polling the provider for
// stale gateway payments.
func (h *Handler) GetStatus(c *gin.Context) {
	o, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}

	view, err := h.service.GetStatus(c.Request.Context(), o.ID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.JSON(http.StatusOK, view)
}

// GetTimeline returns the order's history.
func (h *Handler) GetTimeline(c *gin.Context) {
	o, ok := h.loadOwnedOrder(c)
	if !ok {
		return
	}

	entries, err := h.service.Timeline(c.Request.Context(), o.ID)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.JSON(http.StatusOK, TimelineResponse{OrderID: o.ID, Timeline: entries})
}

// Cancel cancels the user's own order.
func (h *Handler) Cancel(c *gin.Context) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order ID")
		return
	}

	var req CancelRequest
	_ = c.ShouldBindJSON(&req)

	o, err := h.service.Cancel(c.Request.Context(), id, userID, req.Reason)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.JSON(http.StatusOK, o)
}

// Transition moves an order's status (admin).
func (h *Handler) Transition(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order ID")
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	o, err := h.service.TransitionStatus(c.Request.Context(), id, req.To, "admin", req.Message)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *Handler) loadOwnedOrder(c *gin.Context) (*Order, bool) {
	userID := middleware.UserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid order ID")
		return nil, false
	}

	o, err := h.service.GetOrder(c.Request.Context(), id)
	if err != nil {
		response.HandleErrorWithDefault(c, err, errorMappings)
		return nil, false
	}
	if o.UserID != userID {
		response.HandleErrorWithDefault(c, ErrForbidden, errorMappings)
		return nil, false
	}
	return o, true
}
