package checkout

import (
	"context"
	"time"

	"github.com/angelmondragon/cartsync/internal/cart"
	"github.com/angelmondragon/cartsync/internal/pricing"
	"github.com/angelmondragon/cartsync/pkg/enums"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderPayload is what the submission service receives. The breakdown inside
// it is computed at submission time, never reused from earlier in the session.
type OrderPayload struct {
	CartID          uuid.UUID           `json:"cart_id"`
	OwnerID         uuid.UUID           `json:"owner_id"`
	Lines           []cart.Line         `json:"lines" validate:"min=1"`
	ShippingAddress types.Address       `json:"shipping_address" validate:"required"`
	BillingAddress  *types.Address      `json:"billing_address,omitempty"`
	Method          enums.PaymentMethod `json:"payment_method" validate:"required"`
	Breakdown       pricing.Breakdown   `json:"price_breakdown"`
}

// OrderConfirmation is the submission service's acknowledgement.
type OrderConfirmation struct {
	OrderID      uuid.UUID       `json:"order_id"`
	TotalCharged decimal.Decimal `json:"total_charged"`
	SubmittedAt  time.Time       `json:"submitted_at"`
}

// OrderSubmissionService receives the payload built at payment → submit. Its
// internal processing is out of scope here; success or failure is surfaced to
// the caller as-is.
type OrderSubmissionService interface {
	SubmitOrder(ctx context.Context, payload OrderPayload) (*OrderConfirmation, error)
}

// AddressStore supplies the session's saved shipping address. The machine
// only reads from it; persistence belongs to the store.
type AddressStore interface {
	ShippingAddress(ctx context.Context) (*types.Address, error)
}

// PolicySource yields the pricing policy in effect at a point in time, so
// shipping promotions or tax changes land without rebuilding the machine.
type PolicySource func() pricing.Policy

// StaticPolicy pins a policy for the machine's lifetime.
func StaticPolicy(policy pricing.Policy) PolicySource {
	return func() pricing.Policy { return policy }
}
