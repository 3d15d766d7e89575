package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusNew, StatusProcessing, true},
		{StatusNew, StatusCancelled, true},
		{StatusNew, StatusShipping, false},
		{StatusNew, StatusCompleted, false},
		{StatusProcessing, StatusShipping, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusCompleted, false},
		{StatusShipping, StatusCompleted, true},
		{StatusShipping, StatusCancelled, false},
		{StatusCompleted, StatusShipping, false},
		{StatusCancelled, StatusNew, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, sm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestPaymentTransitions(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{PaymentPending, PaymentProcessing, true},
		{PaymentPending, PaymentSuccess, true},
		{PaymentPending, PaymentFailed, true},
		{PaymentProcessing, PaymentSuccess, true},
		{PaymentProcessing, PaymentFailed, true},
		{PaymentFailed, PaymentProcessing, true}, // Retry
		{PaymentSuccess, PaymentFailed, false},
		{PaymentSuccess, PaymentProcessing, false},
		{PaymentCancelled, PaymentProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, sm.CanTransitionPayment(tt.from, tt.to))
		})
	}
}

func TestTransitionMutatesOrder(t *testing.T) {
	sm := NewStateMachine()
	o := &Order{Status: StatusNew}

	assert.NoError(t, sm.Transition(o, StatusProcessing))
	assert.Equal(t, StatusProcessing, o.Status)

	err := sm.Transition(o, StatusNew)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusProcessing, o.Status)
}

func TestAllowedTransitionsCopies(t *testing.T) {
	sm := NewStateMachine()

	allowed := sm.AllowedTransitions(StatusNew)
	assert.ElementsMatch(t, []Status{StatusProcessing, StatusCancelled}, allowed)

	allowed[0] = StatusCompleted
	assert.ElementsMatch(t, []Status{StatusProcessing, StatusCancelled}, sm.AllowedTransitions(StatusNew))
}
