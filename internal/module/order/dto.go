package order

import "github.com/google/uuid"

// CheckoutRequest is the payload for creating an order from the cart.
type CheckoutRequest struct {
	ShippingAddress ShippingAddressRequest `json:"shipping_address" binding:"required"`
	VoucherCode     string                 `json:"voucher_code"`
	PaymentMethod   PaymentMethod          `json:"payment_method" binding:"required"`
}

// ShippingAddressRequest is the delivery address supplied at checkout.
type ShippingAddressRequest struct {
	RecipientName string `json:"recipient_name" binding:"required"`
	Phone         string `json:"phone" binding:"required"`
	AddressLine   string `json:"address_line" binding:"required"`
	Ward          string `json:"ward"`
	District      string `json:"district"`
	City          string `json:"city" binding:"required"`
}

func (r ShippingAddressRequest) toAddress() ShippingAddress {
	return ShippingAddress{
		RecipientName: r.RecipientName,
		Phone:         r.Phone,
		AddressLine:   r.AddressLine,
		Ward:          r.Ward,
		District:      r.District,
		City:          r.City,
	}
}

// PaymentInstruction tells the client how to complete a gateway payment.
type PaymentInstruction struct {
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Token       string `json:"token,omitempty"`
	QRContent   string `json:"qr_content,omitempty"`
}

// CheckoutResponse is the result of a checkout. Payment is set for
// gateway methods when the payment request was created; PaymentError
// carries the retryable failure otherwise.
type CheckoutResponse struct {
	Order        *Order              `json:"order"`
	Payment      *PaymentInstruction `json:"payment,omitempty"`
	PaymentError string              `json:"payment_error,omitempty"`
}

// TransitionRequest is the admin payload for moving an order's status.
type TransitionRequest struct {
	To      Status `json:"to" binding:"required"`
	Message string `json:"message"`
}

// CancelRequest is the payload for cancelling an order.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// ListResponse is a page of orders.
type ListResponse struct {
	Orders   []*Order `json:"orders"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// TimelineResponse is the order history.
type TimelineResponse struct {
	OrderID  uuid.UUID        `json:"order_id"`
	Timeline []*TimelineEntry `json:"timeline"`
}
