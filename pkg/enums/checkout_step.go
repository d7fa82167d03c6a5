package enums

import "fmt"

// CheckoutStep names a stage of the checkout wizard.
type CheckoutStep string

const (
	CheckoutStepCart    CheckoutStep = "cart"
	CheckoutStepAddress CheckoutStep = "address"
	CheckoutStepPayment CheckoutStep = "payment"
)

var checkoutStepOrder = []CheckoutStep{
	CheckoutStepCart,
	CheckoutStepAddress,
	CheckoutStepPayment,
}

// String implements fmt.Stringer.
func (c CheckoutStep) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CheckoutStep.
func (c CheckoutStep) IsValid() bool {
	for _, candidate := range checkoutStepOrder {
		if candidate == c {
			return true
		}
	}
	return false
}

// Next returns the step after c, or c itself when already at the last step.
func (c CheckoutStep) Next() CheckoutStep {
	for i, candidate := range checkoutStepOrder {
		if candidate == c && i+1 < len(checkoutStepOrder) {
			return checkoutStepOrder[i+1]
		}
	}
	return c
}

// Prev returns the step before c, or c itself when already at the first step.
func (c CheckoutStep) Prev() CheckoutStep {
	for i, candidate := range checkoutStepOrder {
		if candidate == c && i > 0 {
			return checkoutStepOrder[i-1]
		}
	}
	return c
}

// ParseCheckoutStep converts raw input into a CheckoutStep.
func ParseCheckoutStep(value string) (CheckoutStep, error) {
	for _, candidate := range checkoutStepOrder {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkout step %q", value)
}
