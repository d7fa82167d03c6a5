package pricing

import (
	"github.com/angelmondragon/cartsync/internal/cart"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/shopspring/decimal"
)

// Breakdown is the priced view of a cart snapshot. Amounts are decimal
// dollars rounded to cents.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	ShippingCharge decimal.Decimal `json:"shipping_charge"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
	Clamped        bool            `json:"clamped,omitempty"`
}

// Equal reports whether two breakdowns carry the same amounts.
func (b Breakdown) Equal(other Breakdown) bool {
	return b.Subtotal.Equal(other.Subtotal) &&
		b.Tax.Equal(other.Tax) &&
		b.ShippingCharge.Equal(other.ShippingCharge) &&
		b.Discount.Equal(other.Discount) &&
		b.Total.Equal(other.Total) &&
		b.Clamped == other.Clamped
}

// Engine computes cart totals. It is pure: the same lines and policy always
// produce the same breakdown, regardless of call site or call count.
type Engine struct {
	resolver *Resolver
}

// NewEngine builds an engine. A nil resolver defaults to one without a
// variation index.
func NewEngine(resolver *Resolver) *Engine {
	if resolver == nil {
		resolver = NewResolver(nil)
	}
	return &Engine{resolver: resolver}
}

// Resolver exposes the engine's price resolver.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// Compute walks the lines once, accumulating subtotal and tax, then applies
// shipping and discount. A discount driving the total negative clamps it to
// zero, marks the breakdown, and returns a policy error; the clamped
// breakdown is still usable for display.
func (e *Engine) Compute(lines []cart.Line, policy Policy) (Breakdown, error) {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, line := range lines {
		unit := e.resolver.ResolveUnitPrice(line)
		quantity := decimal.NewFromInt(int64(line.Quantity))
		subtotal = subtotal.Add(unit.Mul(quantity))
		if policy.Tax != nil {
			tax = tax.Add(policy.Tax.UnitTax(line, unit).Mul(quantity))
		}
	}
	tax = tax.Round(2)

	breakdown := Breakdown{
		Subtotal:       subtotal,
		Tax:            tax,
		ShippingCharge: policy.ShippingCharge,
		Discount:       policy.Discount,
		Total:          subtotal.Add(tax).Add(policy.ShippingCharge).Sub(policy.Discount).Round(2),
	}
	if breakdown.Total.IsNegative() {
		breakdown.Total = decimal.Zero
		breakdown.Clamped = true
		return breakdown, pkgerrors.New(pkgerrors.CodePolicy, "discount exceeds cart total")
	}
	return breakdown, nil
}
