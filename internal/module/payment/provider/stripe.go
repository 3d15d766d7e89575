package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey      string
	EndpointSecret string // Webhook signing secret
}

// Stripe implements Provider for card payments via Stripe
// PaymentIntents. VND is a zero-decimal currency, so amounts pass
// through unscaled.
type Stripe struct {
	cfg StripeConfig
}

// NewStripe creates a new Stripe adapter.
func NewStripe(cfg StripeConfig) *Stripe {
	stripe.Key = cfg.SecretKey
	return &Stripe{cfg: cfg}
}

// Name returns the provider name.
func (p *Stripe) Name() string {
	return "stripe"
}

// CreatePayment creates a PaymentIntent. The client confirms it with
// the returned client secret; the outcome arrives on the webhook.
func (p *Stripe) CreatePayment(ctx context.Context, req *CreateRequest) (*CreateResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(string(stripe.CurrencyVND)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(req.OrderInfo),
		Metadata: map[string]string{
			"order_id": req.OrderID,
			"order_no": req.OrderNo,
		},
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	return &CreateResult{
		TxnID: pi.ID,
		Token: pi.ClientSecret,
	}, nil
}

// ParseCallback verifies a Stripe webhook delivery. Only payment intent
// outcome events are acted on; everything else returns ErrEventIgnored
// so the caller acknowledges without touching state.
func (p *Stripe) ParseCallback(ctx context.Context, req *CallbackRequest) (*Callback, error) {
	event, err := webhook.ConstructEvent(req.Body, req.Headers["Stripe-Signature"], p.cfg.EndpointSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	switch event.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
	default:
		return nil, ErrEventIgnored
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}

	message := string(event.Type)
	if pi.LastPaymentError != nil {
		message = pi.LastPaymentError.Msg
	}

	return &Callback{
		EventID: event.ID,
		TxnID:   pi.ID,
		Amount:  pi.Amount,
		Success: event.Type == "payment_intent.succeeded",
		Message: message,
		Raw:     string(event.Data.Raw),
	}, nil
}

// QueryPayment retrieves the PaymentIntent's current state.
func (p *Stripe) QueryPayment(ctx context.Context, txnID string) (*QueryResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(txnID, params)
	if err != nil {
		return nil, fmt.Errorf("get payment intent: %w", err)
	}

	result := &QueryResult{TxnID: pi.ID, Amount: pi.Amount}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		result.Status = StatusSuccess
	case stripe.PaymentIntentStatusCanceled:
		result.Status = StatusFailed
	default:
		result.Status = StatusPending
	}
	return result, nil
}
