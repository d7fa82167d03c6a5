package pricing

import (
	"github.com/angelmondragon/cartsync/internal/cart"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxPolicy yields the tax charged per unit of a line. Implementations must
// be pure so two call sites given the same snapshot always agree.
type TaxPolicy interface {
	UnitTax(line cart.Line, unitPrice decimal.Decimal) decimal.Decimal
}

// FlatPerUnitTax charges a flat amount per unit, with optional per-product
// overrides. This is the default model.
type FlatPerUnitTax struct {
	Default    decimal.Decimal
	PerProduct map[uuid.UUID]decimal.Decimal
}

// FlatPerUnitTaxCents builds a flat policy from a cent amount.
func FlatPerUnitTaxCents(cents int) FlatPerUnitTax {
	return FlatPerUnitTax{Default: centsToAmount(cents)}
}

// UnitTax implements TaxPolicy.
func (f FlatPerUnitTax) UnitTax(line cart.Line, _ decimal.Decimal) decimal.Decimal {
	if f.PerProduct != nil {
		if amount, ok := f.PerProduct[line.Product.ID]; ok {
			return amount
		}
	}
	return f.Default
}

// PercentTax charges a rate on the resolved unit price, e.g. 0.08 for 8%.
type PercentTax struct {
	Rate decimal.Decimal
}

// UnitTax implements TaxPolicy.
func (p PercentTax) UnitTax(_ cart.Line, unitPrice decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(p.Rate)
}

// Policy bundles the externally supplied pricing inputs. Zero values mean no
// tax, no shipping, no discount.
type Policy struct {
	Tax            TaxPolicy
	ShippingCharge decimal.Decimal
	Discount       decimal.Decimal
}
