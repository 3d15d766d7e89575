package payment

import "errors"

// Payment errors.
var (
	// ErrProviderNotFound means no adapter is registered for the
	// requested provider or payment method.
	ErrProviderNotFound = errors.New("payment provider not found")

	// ErrGatewayUnavailable means the outbound payment request failed;
	// the order stays payable and the client may retry.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrPaymentNotFound means no payment attempt matches the lookup.
	ErrPaymentNotFound = errors.New("payment not found")

	// ErrDuplicateEvent means this webhook delivery was already
	// recorded; the callback must be acknowledged without reprocessing.
	ErrDuplicateEvent = errors.New("webhook event already recorded")

	// ErrAmountMismatch means the callback's amount does not match the
	// order total.
	ErrAmountMismatch = errors.New("callback amount does not match order total")
)
