package pricing

import (
	"github.com/angelmondragon/cartsync/internal/cart"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VariationIndex records which variations are known for each product. A nil
// index trusts the variation refs carried on cart lines.
type VariationIndex map[uuid.UUID]map[uuid.UUID]struct{}

// Add marks a variation as known for a product.
func (idx VariationIndex) Add(productID, variationID uuid.UUID) {
	variations, ok := idx[productID]
	if !ok {
		variations = make(map[uuid.UUID]struct{})
		idx[productID] = variations
	}
	variations[variationID] = struct{}{}
}

// Known reports whether the variation is registered for the product.
func (idx VariationIndex) Known(productID, variationID uuid.UUID) bool {
	variations, ok := idx[productID]
	if !ok {
		return false
	}
	_, ok = variations[variationID]
	return ok
}

// Resolver derives the unit price for a cart line: the variation price when a
// matching variation exists, the product base price otherwise. Resolution is
// total; an unknown variation is the fallback path, never an error. Every
// downstream total depends on that.
type Resolver struct {
	index VariationIndex
}

// NewResolver builds a resolver. A nil index disables the known-variation
// check and trusts the line's variation snapshot.
func NewResolver(index VariationIndex) *Resolver {
	return &Resolver{index: index}
}

// ResolveUnitPrice returns the unit price for the line.
func (r *Resolver) ResolveUnitPrice(line cart.Line) decimal.Decimal {
	if line.Variation != nil {
		if r.index == nil || r.index.Known(line.Product.ID, line.Variation.ID) {
			return centsToAmount(line.Variation.PriceCents)
		}
	}
	return centsToAmount(line.Product.BasePriceCents)
}

func centsToAmount(cents int) decimal.Decimal {
	return decimal.New(int64(cents), -2)
}
