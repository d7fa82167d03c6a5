package types

import "github.com/google/uuid"

// ProductRef carries the product identifier plus denormalized display fields.
// The display fields are a client-side cache; pricing always goes through the
// resolver, and the remote store stays authoritative for identifiers.
type ProductRef struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Thumbnail      string    `json:"thumbnail,omitempty"`
	BasePriceCents int       `json:"base_price_cents"`
}

// VariationRef carries the selected variation plus its denormalized
// size/color/price snapshot.
type VariationRef struct {
	ID         uuid.UUID `json:"id"`
	Size       string    `json:"size,omitempty"`
	Color      string    `json:"color,omitempty"`
	PriceCents int       `json:"price_cents"`
}

// Clone returns a deep copy of the ref.
func (p ProductRef) Clone() ProductRef {
	return p
}

// Clone returns a deep copy of the ref.
func (v *VariationRef) Clone() *VariationRef {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

// MergeDisplay fills display fields the server response omitted from the
// cached ref. A response carrying any display data is taken at face value for
// the price, so a genuine zero base price survives the merge; only a ref
// stripped down to its identifier adopts the cached price.
func (p ProductRef) MergeDisplay(cached ProductRef) ProductRef {
	out := p
	stripped := p.Name == "" && p.Thumbnail == "" && p.BasePriceCents == 0
	if out.Name == "" {
		out.Name = cached.Name
	}
	if out.Thumbnail == "" {
		out.Thumbnail = cached.Thumbnail
	}
	if stripped {
		out.BasePriceCents = cached.BasePriceCents
	}
	return out
}
