package cart

import (
	"sync"

	"github.com/angelmondragon/cartsync/pkg/enums"
	"github.com/google/uuid"
)

// Replica is the single in-memory mirror of the remote cart shared by every
// rendering surface. Reads go through the accessor methods; writes happen
// only inside this package, driven by the Coordinator.
type Replica struct {
	mu      sync.RWMutex
	cart    *Cart
	pending map[uuid.UUID]*PendingMutation
}

// NewReplica builds an empty replica. The first Refresh populates it.
func NewReplica() *Replica {
	return &Replica{
		pending: make(map[uuid.UUID]*PendingMutation),
	}
}

// Snapshot returns a deep copy of the current cart, or nil before the first
// fetch. Callers may hold the copy across renders without racing writers.
func (r *Replica) Snapshot() *Cart {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cart.Clone()
}

// Lines returns a deep copy of the current line set.
func (r *Replica) Lines() []Line {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cart == nil {
		return nil
	}
	out := make([]Line, 0, len(r.cart.Lines))
	for _, line := range r.cart.Lines {
		out = append(out, line.Clone())
	}
	return out
}

// Line returns a copy of the line with the given id.
func (r *Replica) Line(lineID uuid.UUID) (Line, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	line, ok := r.cart.Line(lineID)
	if !ok {
		return Line{}, false
	}
	return line.Clone(), true
}

// IsEmpty reports whether the replica currently shows no lines.
func (r *Replica) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cart.IsEmpty()
}

// CartID returns the id of the mirrored cart.
func (r *Replica) CartID() (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cart == nil {
		return uuid.Nil, false
	}
	return r.cart.ID, true
}

// Pending returns a copy of the pending mutation for the line, if any.
func (r *Replica) Pending(lineID uuid.UUID) (PendingMutation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.pending[lineID]
	if !ok {
		return PendingMutation{}, false
	}
	return *entry, true
}

// Reset drops all replica state. Used on logout.
func (r *Replica) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cart = nil
	r.pending = make(map[uuid.UUID]*PendingMutation)
}

// replace swaps in a fresh authoritative snapshot, then re-applies the
// optimistic effect of every still-in-flight mutation so a refetch cannot
// undo edits whose confirmations are outstanding.
func (r *Replica) replace(fresh *Cart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cart = fresh.Clone()
	for _, entry := range r.pending {
		r.reapplyLocked(entry)
	}
}

func (r *Replica) reapplyLocked(entry *PendingMutation) {
	if r.cart == nil {
		return
	}
	switch entry.Kind {
	case enums.MutationKindAdjustQuantity:
		for i := range r.cart.Lines {
			if r.cart.Lines[i].ID == entry.LineID {
				r.cart.Lines[i].Quantity = entry.TargetQuantity
				return
			}
		}
	case enums.MutationKindRemoveLine:
		r.removeLineLocked(entry.LineID)
	case enums.MutationKindClearCart:
		r.cart.Lines = nil
	}
}

// setPending records an in-flight mutation. At most one per line id.
func (r *Replica) setPending(entry *PendingMutation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[entry.LineID] = entry
}

// clearPending drops the pending entry once a mutation resolves.
func (r *Replica) clearPending(lineID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, lineID)
}

// applyQuantity optimistically sets the quantity for a line.
func (r *Replica) applyQuantity(lineID uuid.UUID, quantity int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cart == nil {
		return false
	}
	for i := range r.cart.Lines {
		if r.cart.Lines[i].ID == lineID {
			r.cart.Lines[i].Quantity = quantity
			return true
		}
	}
	return false
}

// removeLine optimistically filters a line out of the cart.
func (r *Replica) removeLine(lineID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLineLocked(lineID)
}

func (r *Replica) removeLineLocked(lineID uuid.UUID) bool {
	if r.cart == nil {
		return false
	}
	for i := range r.cart.Lines {
		if r.cart.Lines[i].ID == lineID {
			r.cart.Lines = append(r.cart.Lines[:i], r.cart.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// clearLines optimistically empties the cart.
func (r *Replica) clearLines() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cart != nil {
		r.cart.Lines = nil
	}
}

// restoreLine rolls a line back to its pre-mutation snapshot, verbatim. The
// line is put back at its original position when it was removed, or its
// fields overwritten in place when it still exists.
func (r *Replica) restoreLine(snapshot Line, position int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cart == nil {
		return
	}
	for i := range r.cart.Lines {
		if r.cart.Lines[i].ID == snapshot.ID {
			r.cart.Lines[i] = snapshot.Clone()
			return
		}
	}
	restored := snapshot.Clone()
	if position < 0 || position > len(r.cart.Lines) {
		position = len(r.cart.Lines)
	}
	r.cart.Lines = append(r.cart.Lines[:position], append([]Line{restored}, r.cart.Lines[position:]...)...)
}

// restoreCart rolls the whole cart back after a failed clear.
func (r *Replica) restoreCart(snapshot *Cart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cart = snapshot.Clone()
}

// linePosition returns the index of a line in the current order.
func (r *Replica) linePosition(lineID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cart == nil {
		return -1
	}
	for i := range r.cart.Lines {
		if r.cart.Lines[i].ID == lineID {
			return i
		}
	}
	return -1
}

// mergeConfirmedLine adopts the server's version of one confirmed line while
// preserving locally cached display fields the response omitted. Other lines
// are left untouched; their own confirmations own them.
func (r *Replica) mergeConfirmedLine(lineID uuid.UUID, server *Cart) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cart == nil || server == nil {
		return
	}
	serverLine, ok := server.Line(lineID)
	if !ok {
		r.removeLineLocked(lineID)
		return
	}
	r.cart.UpdatedAt = server.UpdatedAt
	for i := range r.cart.Lines {
		if r.cart.Lines[i].ID != lineID {
			continue
		}
		cached := r.cart.Lines[i]
		merged := serverLine.Clone()
		merged.Product = merged.Product.MergeDisplay(cached.Product)
		if merged.Variation == nil && cached.Variation != nil {
			merged.Variation = cached.Variation.Clone()
		}
		r.cart.Lines[i] = merged
		return
	}
}
