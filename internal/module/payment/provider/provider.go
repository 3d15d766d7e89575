// Package provider contains the payment gateway adapters. Each adapter
// owns its provider's wire format: request signing, amount convention,
// callback parsing and signature verification.
package provider

import (
	"context"
	"errors"
	"net/url"
)

// Status is a provider-reported payment state.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Adapter errors.
var (
	// ErrSignatureInvalid means a callback failed verification and must
	// be rejected without any state change.
	ErrSignatureInvalid = errors.New("invalid callback signature")

	// ErrEventIgnored means the callback is authentic but carries an
	// event type this system does not act on.
	ErrEventIgnored = errors.New("callback event ignored")
)

// CreateRequest is the provider-independent payment request.
type CreateRequest struct {
	OrderID   string // Internal order UUID
	OrderNo   string // Human-readable order number
	Amount    int64  // In VND
	OrderInfo string
	ClientIP  string
	NotifyURL string
	ReturnURL string
}

// CreateResult is what the provider returned for a payment request.
// TxnID is the correlation key later callbacks are matched on.
type CreateResult struct {
	TxnID       string
	Token       string
	RedirectURL string
	QRContent   string
}

// CallbackRequest carries the raw inbound notification exactly as the
// provider delivered it; adapters decide which parts matter.
type CallbackRequest struct {
	Body    []byte
	Query   url.Values
	Headers map[string]string
}

// Callback is a verified, normalized payment notification.
type Callback struct {
	EventID string // Unique per delivery attempt class, for idempotency
	TxnID   string // Correlation key back to the order
	Amount  int64  // In VND; 0 when the provider does not echo it
	Success bool
	Message string
	Raw     string
}

// QueryResult is the provider's answer to an active status query.
type QueryResult struct {
	TxnID  string
	Status Status
	Amount int64
}

// Provider is a payment gateway adapter.
type Provider interface {
	// Name returns the provider name used in routes and correlation.
	Name() string

	// CreatePayment creates a payment request and returns the client
	// redirect/token payload.
	CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error)

	// ParseCallback verifies and normalizes an async notification.
	// A verification failure returns ErrSignatureInvalid.
	ParseCallback(ctx context.Context, req *CallbackRequest) (*Callback, error)

	// QueryPayment actively asks the provider for a payment's state.
	QueryPayment(ctx context.Context, txnID string) (*QueryResult, error)
}
