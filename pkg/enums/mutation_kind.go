package enums

import "fmt"

// MutationKind identifies the cart edit a pending mutation carries.
type MutationKind string

const (
	MutationKindAdjustQuantity MutationKind = "adjust_quantity"
	MutationKindRemoveLine     MutationKind = "remove_line"
	MutationKindClearCart      MutationKind = "clear_cart"
)

var validMutationKinds = []MutationKind{
	MutationKindAdjustQuantity,
	MutationKindRemoveLine,
	MutationKindClearCart,
}

// String implements fmt.Stringer.
func (m MutationKind) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MutationKind.
func (m MutationKind) IsValid() bool {
	for _, candidate := range validMutationKinds {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMutationKind converts raw input into a MutationKind.
func ParseMutationKind(value string) (MutationKind, error) {
	for _, candidate := range validMutationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mutation kind %q", value)
}
