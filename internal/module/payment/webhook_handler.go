package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lapstore/server/internal/module/payment/provider"
)

// WebhookHandler receives the async gateway notifications. Each
// endpoint speaks its provider's acknowledgement dialect; getting the
// ack wrong makes the gateway redeliver forever.
type WebhookHandler struct {
	service *Service
	logger  *zap.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(service *Service, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{service: service, logger: logger}
}

// RegisterRoutes registers the webhook routes. These are called by the
// gateways, not by clients, so they sit outside the authenticated API.
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/vnpay", h.HandleVNPay)
	r.POST("/momo", h.HandleMoMo)
	r.POST("/zalopay", h.HandleZaloPay)
	r.POST("/stripe", h.HandleStripe)
	r.POST("/alipay", h.HandleAlipay)
}

// HandleVNPay handles the VNPay IPN. VNPay reads the outcome from the
// RspCode body and expects HTTP 200 regardless, so every branch
// answers 200 with the matching code.
func (h *WebhookHandler) HandleVNPay(c *gin.Context) {
	outcome, err := h.service.HandleCallback(c.Request.Context(), "vnpay", &provider.CallbackRequest{
		Query: c.Request.URL.Query(),
	})

	switch {
	case errors.Is(err, provider.ErrSignatureInvalid):
		c.JSON(http.StatusOK, gin.H{"RspCode": "97", "Message": "Invalid Checksum"})
	case err != nil && errors.Is(err, ErrAmountMismatch):
		c.JSON(http.StatusOK, gin.H{"RspCode": "04", "Message": "Invalid Amount"})
	case err != nil:
		h.logger.Error("vnpay ipn processing failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"RspCode": "99", "Message": "Unknown error"})
	case outcome.OrderMissing:
		c.JSON(http.StatusOK, gin.H{"RspCode": "01", "Message": "Order not Found"})
	case outcome.Duplicate:
		c.JSON(http.StatusOK, gin.H{"RspCode": "02", "Message": "Order already confirmed"})
	default:
		c.JSON(http.StatusOK, gin.H{"RspCode": "00", "Message": "Confirm Success"})
	}
}

// HandleMoMo handles the MoMo IPN. MoMo treats 204 No Content as the
// acknowledgement; anything else is redelivered.
func (h *WebhookHandler) HandleMoMo(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}

	_, err = h.service.HandleCallback(c.Request.Context(), "momo", &provider.CallbackRequest{Body: body})
	switch {
	case errors.Is(err, provider.ErrSignatureInvalid):
		c.Status(http.StatusForbidden)
	case err != nil:
		h.logger.Error("momo ipn processing failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
	default:
		c.Status(http.StatusNoContent)
	}
}

// HandleZaloPay handles the ZaloPay callback. return_code 1 stops
// redelivery, -1 rejects the mac, 0 asks ZaloPay to retry.
func (h *WebhookHandler) HandleZaloPay(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"return_code": 0, "return_message": "read body failed"})
		return
	}

	_, err = h.service.HandleCallback(c.Request.Context(), "zalopay", &provider.CallbackRequest{Body: body})
	switch {
	case errors.Is(err, provider.ErrSignatureInvalid):
		c.JSON(http.StatusOK, gin.H{"return_code": -1, "return_message": "mac not equal"})
	case err != nil:
		h.logger.Error("zalopay callback processing failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{"return_code": 0, "return_message": "internal error"})
	default:
		c.JSON(http.StatusOK, gin.H{"return_code": 1, "return_message": "success"})
	}
}

// HandleStripe handles Stripe webhook deliveries.
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	_, err = h.service.HandleCallback(c.Request.Context(), "stripe", &provider.CallbackRequest{
		Body:    body,
		Headers: map[string]string{"Stripe-Signature": c.GetHeader("Stripe-Signature")},
	})
	switch {
	case errors.Is(err, provider.ErrSignatureInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case errors.Is(err, provider.ErrEventIgnored):
		// Acknowledge event types this system does not act on.
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	case err != nil:
		h.logger.Error("stripe webhook processing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleAlipay handles the Alipay async notify. Alipay expects the
// literal body "success"; any other body triggers redelivery.
func (h *WebhookHandler) HandleAlipay(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "fail")
		return
	}

	outcome, err := h.service.HandleCallback(c.Request.Context(), "alipay", &provider.CallbackRequest{Body: body})
	switch {
	case errors.Is(err, provider.ErrEventIgnored):
		c.String(http.StatusOK, "success")
	case err != nil:
		h.logger.Error("alipay notify processing failed", zap.Error(err))
		c.String(http.StatusOK, "fail")
	case outcome.OrderMissing:
		c.String(http.StatusOK, "fail")
	default:
		c.String(http.StatusOK, "success")
	}
}
