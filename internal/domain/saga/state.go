package saga

import "fmt"

// Step is the client-side position in the payment saga.
type Step string

const (
	// StepFormInput is the resting step: no reservation is pending.
	StepFormInput Step = "FORM_INPUT"
	// StepProcessingPayment covers the window between persisting the reservation and receiving a charge.
	StepProcessingPayment Step = "PROCESSING_PAYMENT"
	// StepShowQr means a live charge is displayed and confirmation is polled.
	StepShowQr Step = "SHOW_QR"
	// StepPaymentFailed is shown until the user acknowledges it.
	StepPaymentFailed Step = "PAYMENT_FAILED"
)

var validTransitions = map[Step][]Step{
	StepFormInput:         {StepProcessingPayment, StepShowQr},
	StepProcessingPayment: {StepShowQr, StepPaymentFailed, StepFormInput},
	StepShowQr:            {StepFormInput, StepPaymentFailed},
	StepPaymentFailed:     {StepFormInput},
}

// CanTransitionTo checks if a step transition is valid.
// FormInput -> ShowQr is only used when a session is restored from storage.
func (s Step) CanTransitionTo(target Step) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}

	for _, step := range allowed {
		if step == target {
			return true
		}
	}

	return false
}

// Transition returns target if the move is allowed, or ErrInvalidTransition.
func (s Step) Transition(target Step) (Step, error) {
	if !s.CanTransitionTo(target) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, target)
	}
	return target, nil
}
