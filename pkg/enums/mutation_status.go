package enums

import "fmt"

// MutationStatus tracks a pending mutation through its optimistic lifecycle.
type MutationStatus string

const (
	MutationStatusInFlight   MutationStatus = "in_flight"
	MutationStatusSucceeded  MutationStatus = "succeeded"
	MutationStatusFailed     MutationStatus = "failed"
	MutationStatusRolledBack MutationStatus = "rolled_back"
)

var validMutationStatuses = []MutationStatus{
	MutationStatusInFlight,
	MutationStatusSucceeded,
	MutationStatusFailed,
	MutationStatusRolledBack,
}

// String implements fmt.Stringer.
func (m MutationStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MutationStatus.
func (m MutationStatus) IsValid() bool {
	for _, candidate := range validMutationStatuses {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMutationStatus converts raw input into a MutationStatus.
func ParseMutationStatus(value string) (MutationStatus, error) {
	for _, candidate := range validMutationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid mutation status %q", value)
}
