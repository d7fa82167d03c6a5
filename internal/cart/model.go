package cart

import (
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/google/uuid"
)

// Line is one product+variation+quantity entry in a cart. Quantity never
// drops below 1; removal is a distinct action.
type Line struct {
	ID        uuid.UUID           `json:"id"`
	Product   types.ProductRef    `json:"product"`
	Variation *types.VariationRef `json:"variation,omitempty"`
	Quantity  int                 `json:"quantity"`
}

// Clone returns a deep copy of the line.
func (l Line) Clone() Line {
	out := l
	out.Product = l.Product.Clone()
	out.Variation = l.Variation.Clone()
	return out
}

// Cart mirrors the remote cart resource for one owner. Line order is
// preserved and line ids are unique.
type Cart struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Lines     []Line    `json:"lines"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the cart.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Lines = make([]Line, 0, len(c.Lines))
	for _, line := range c.Lines {
		out.Lines = append(out.Lines, line.Clone())
	}
	return &out
}

// Line returns the line with the given id.
func (c *Cart) Line(lineID uuid.UUID) (Line, bool) {
	if c == nil {
		return Line{}, false
	}
	for _, line := range c.Lines {
		if line.ID == lineID {
			return line, true
		}
	}
	return Line{}, false
}

// IsEmpty reports whether the cart holds no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Validate checks the structural invariants: unique line ids, quantity >= 1.
func (c *Cart) Validate() error {
	if c == nil {
		return nil
	}
	seen := make(map[uuid.UUID]struct{}, len(c.Lines))
	for _, line := range c.Lines {
		if _, dup := seen[line.ID]; dup {
			return errDuplicateLine(line.ID)
		}
		seen[line.ID] = struct{}{}
		if line.Quantity < 1 {
			return errQuantityFloor(line.ID, line.Quantity)
		}
	}
	return nil
}

func errDuplicateLine(lineID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("duplicate line id %s", lineID))
}

func errQuantityFloor(lineID uuid.UUID, qty int) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %s quantity %d below floor", lineID, qty))
}
