package models

// Order workflow ids
const (
	WorkflowDefault           = "order_default"
	WorkflowDefaultValidation = "order_default_validation"
)

// Order states
const (
	OrderStateDraft      = "draft"
	OrderStateValidation = "validation"
	OrderStateCompleted  = "completed"
	OrderStateCanceled   = "canceled"
)

// Transition moves an order from one of From to To
type Transition struct {
	ID   string
	From []string
	To   string
}

// Workflow is a named set of order state transitions
type Workflow struct {
	ID          string
	Transitions []Transition
}

// Workflows known to the service
var Workflows = map[string]Workflow{
	WorkflowDefault: {
		ID: WorkflowDefault,
		Transitions: []Transition{
			{ID: "place", From: []string{OrderStateDraft}, To: OrderStateCompleted},
			{ID: "cancel", From: []string{OrderStateDraft}, To: OrderStateCanceled},
		},
	},
	WorkflowDefaultValidation: {
		ID: WorkflowDefaultValidation,
		Transitions: []Transition{
			{ID: "place", From: []string{OrderStateDraft}, To: OrderStateValidation},
			{ID: "validate", From: []string{OrderStateValidation}, To: OrderStateCompleted},
			{ID: "cancel", From: []string{OrderStateDraft, OrderStateValidation}, To: OrderStateCanceled},
		},
	},
}

// AllowedTransition returns the transition with the given id when it can be
// applied from state.
func (w Workflow) AllowedTransition(id, state string) (Transition, bool) {
	for _, t := range w.Transitions {
		if t.ID != id {
			continue
		}
		for _, from := range t.From {
			if from == state {
				return t, true
			}
		}
	}
	return Transition{}, false
}

// Checkout steps of the default multistep flow
const (
	CheckoutStepLogin            = "login"
	CheckoutStepOrderInformation = "order_information"
	CheckoutStepReview           = "review"
	CheckoutStepPayment          = "payment"
	CheckoutStepComplete         = "complete"
)

var checkoutSteps = []string{
	CheckoutStepLogin,
	CheckoutStepOrderInformation,
	CheckoutStepReview,
	CheckoutStepPayment,
	CheckoutStepComplete,
}

// NextCheckoutStep returns the step after step. The complete step stays
// where it is; unknown steps map to complete.
func NextCheckoutStep(step string) string {
	for i, s := range checkoutSteps {
		if s == step && i+1 < len(checkoutSteps) {
			return checkoutSteps[i+1]
		}
	}
	return CheckoutStepComplete
}

// PreviousCheckoutStep returns the step before step. The first step stays
// where it is; unknown steps map to review.
func PreviousCheckoutStep(step string) string {
	for i, s := range checkoutSteps {
		if s != step {
			continue
		}
		if i == 0 {
			return s
		}
		return checkoutSteps[i-1]
	}
	return CheckoutStepReview
}
