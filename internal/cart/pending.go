package cart

import (
	"time"

	"github.com/angelmondragon/cartsync/pkg/enums"
	"github.com/google/uuid"
)

// PendingMutation records one in-flight optimistic edit, keeping the
// pre-mutation snapshot for rollback.
type PendingMutation struct {
	Kind           enums.MutationKind
	Status         enums.MutationStatus
	LineID         uuid.UUID
	Delta          int
	TargetQuantity int

	// PrevLine holds the line as it was before an adjust/remove edit.
	PrevLine *Line
	// PrevCart holds the whole cart before a clear-all edit.
	PrevCart *Cart

	IssuedAt time.Time
}

// clearLineKey keys the pending entry for a clear-all mutation, which targets
// the whole cart rather than a single line.
var clearLineKey = uuid.Nil

func newAdjustPending(line Line, delta, targetQty int) *PendingMutation {
	snapshot := line.Clone()
	return &PendingMutation{
		Kind:           enums.MutationKindAdjustQuantity,
		Status:         enums.MutationStatusInFlight,
		LineID:         line.ID,
		Delta:          delta,
		TargetQuantity: targetQty,
		PrevLine:       &snapshot,
		IssuedAt:       time.Now(),
	}
}

func newRemovePending(line Line) *PendingMutation {
	snapshot := line.Clone()
	return &PendingMutation{
		Kind:     enums.MutationKindRemoveLine,
		Status:   enums.MutationStatusInFlight,
		LineID:   line.ID,
		PrevLine: &snapshot,
		IssuedAt: time.Now(),
	}
}

func newClearPending(cart *Cart) *PendingMutation {
	return &PendingMutation{
		Kind:     enums.MutationKindClearCart,
		Status:   enums.MutationStatusInFlight,
		LineID:   clearLineKey,
		PrevCart: cart.Clone(),
		IssuedAt: time.Now(),
	}
}
