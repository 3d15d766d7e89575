package order

import "fmt"

// StateMachine validates order status and payment status transitions.
type StateMachine struct {
	status  map[Status][]Status
	payment map[PaymentStatus][]PaymentStatus
}

// NewStateMachine creates the order state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		status: map[Status][]Status{
			StatusNew:        {StatusProcessing, StatusCancelled},
			StatusProcessing: {StatusShipping, StatusCancelled},
			StatusShipping:   {StatusCompleted},
			StatusCompleted:  {}, // Terminal
			StatusCancelled:  {}, // Terminal
		},
		payment: map[PaymentStatus][]PaymentStatus{
			PaymentPending:    {PaymentProcessing, PaymentSuccess, PaymentFailed, PaymentCancelled},
			PaymentProcessing: {PaymentSuccess, PaymentFailed, PaymentCancelled},
			PaymentFailed:     {PaymentProcessing, PaymentCancelled}, // Retry creates a new attempt
			PaymentSuccess:    {},                                    // Terminal
			PaymentCancelled:  {},                                    // Terminal
		},
	}
}

// CanTransition checks if a status transition from `from` to `to` is valid.
func (sm *StateMachine) CanTransition(from, to Status) bool {
	for _, s := range sm.status[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CanTransitionPayment checks if a payment status transition is valid.
func (sm *StateMachine) CanTransitionPayment(from, to PaymentStatus) bool {
	for _, s := range sm.payment[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition validates and applies a status transition in memory.
// Persistence still goes through a conditional update keyed on the
// previous status.
func (sm *StateMachine) Transition(o *Order, to Status) error {
	if !sm.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	return nil
}

// AllowedTransitions returns the statuses reachable from `from`.
func (sm *StateMachine) AllowedTransitions(from Status) []Status {
	allowed := sm.status[from]
	result := make([]Status, len(allowed))
	copy(result, allowed)
	return result
}
