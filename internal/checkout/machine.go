package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/cartsync/internal/cart"
	"github.com/angelmondragon/cartsync/internal/pricing"
	"github.com/angelmondragon/cartsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/types"
)

// Machine walks the checkout wizard: cart → address → payment, then an
// explicit submit. Forward transitions are gated on preconditions read live
// from the cart replica; backward transitions always succeed. Steps are never
// skipped, even when a later step's precondition already holds.
type Machine struct {
	replica   *cart.Replica
	engine    *pricing.Engine
	policy    PolicySource
	addresses AddressStore
	submitter OrderSubmissionService
	logg      *logger.Logger

	mu                   sync.Mutex
	step                 enums.CheckoutStep
	shipping             *types.Address
	billing              *types.Address
	useShippingAsBilling bool
}

// Option configures optional machine collaborators.
type Option func(*Machine)

// WithPolicy sets the pricing policy source. Default is an empty policy.
func WithPolicy(policy PolicySource) Option {
	return func(m *Machine) { m.policy = policy }
}

// WithAddressStore lets the machine read a previously saved shipping address
// when advancing past the address step without one set explicitly.
func WithAddressStore(addresses AddressStore) Option {
	return func(m *Machine) { m.addresses = addresses }
}

// NewMachine builds the checkout machine positioned at the cart step.
func NewMachine(
	replica *cart.Replica,
	engine *pricing.Engine,
	submitter OrderSubmissionService,
	logg *logger.Logger,
	opts ...Option,
) (*Machine, error) {
	if replica == nil {
		return nil, fmt.Errorf("cart replica required")
	}
	if engine == nil {
		return nil, fmt.Errorf("pricing engine required")
	}
	if submitter == nil {
		return nil, fmt.Errorf("order submission service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	m := &Machine{
		replica:              replica,
		engine:               engine,
		policy:               StaticPolicy(pricing.Policy{}),
		submitter:            submitter,
		logg:                 logg,
		step:                 enums.CheckoutStepCart,
		useShippingAsBilling: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Step returns the current wizard step.
func (m *Machine) Step() enums.CheckoutStep {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step
}

// ShippingAddress returns the address the machine will ship to, if set.
func (m *Machine) ShippingAddress() *types.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shipping == nil {
		return nil
	}
	copied := *m.shipping
	return &copied
}

// SetShippingAddress validates and records the shipping address.
func (m *Machine) SetShippingAddress(ctx context.Context, address types.Address) error {
	normalized := address.Normalized()
	if err := validateStruct(normalized); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipping = &normalized
	m.logg.Debug(ctx, "shipping address set")
	return nil
}

// SetBillingAddress records a distinct billing address and stops mirroring
// the shipping address into the payload.
func (m *Machine) SetBillingAddress(ctx context.Context, address types.Address) error {
	normalized := address.Normalized()
	if err := validateStruct(normalized); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.billing = &normalized
	m.useShippingAsBilling = false
	return nil
}

// UseShippingAsBilling toggles whether the payload mirrors the shipping
// address as the billing address.
func (m *Machine) UseShippingAsBilling(use bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.useShippingAsBilling = use
	if use {
		m.billing = nil
	}
}

// Advance moves one step forward when the step's precondition holds.
func (m *Machine) Advance(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.step {
	case enums.CheckoutStepCart:
		if m.replica.IsEmpty() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
		}
	case enums.CheckoutStepAddress:
		if m.shipping == nil {
			m.loadSavedAddress(ctx)
		}
		if m.shipping == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "shipping address required")
		}
	case enums.CheckoutStepPayment:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "already at final step")
	}

	m.step = m.step.Next()
	m.logg.Debug(m.logg.WithField(ctx, "step", m.step.String()), "checkout advanced")
	return nil
}

// Back moves one step backward. Always allowed; the cart step is the floor.
func (m *Machine) Back() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.step = m.step.Prev()
}

// Submit builds the order payload and hands it to the submission service.
// The price breakdown is computed here, from the replica's current lines, so
// a last-second cart edit is reflected in what is actually charged. A clamped
// total blocks submission.
func (m *Machine) Submit(ctx context.Context, method enums.PaymentMethod) (*OrderConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step != enums.CheckoutStepPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "submission requires the payment step")
	}
	if !method.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}
	lines := m.replica.Lines()
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
	}
	if m.shipping == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipping address required")
	}

	breakdown, err := m.engine.Compute(lines, m.policy())
	if err != nil {
		m.logg.Error(ctx, "order blocked by pricing policy", err)
		return nil, err
	}

	payload := OrderPayload{
		Lines:           lines,
		ShippingAddress: *m.shipping,
		Method:          method,
		Breakdown:       breakdown,
	}
	if cartID, ok := m.replica.CartID(); ok {
		payload.CartID = cartID
	}
	if snapshot := m.replica.Snapshot(); snapshot != nil {
		payload.OwnerID = snapshot.OwnerID
	}
	switch {
	case m.billing != nil:
		billing := *m.billing
		payload.BillingAddress = &billing
	case m.useShippingAsBilling:
		billing := *m.shipping
		payload.BillingAddress = &billing
	}
	if err := validateStruct(payload); err != nil {
		return nil, err
	}

	confirmation, err := m.submitter.SubmitOrder(ctx, payload)
	if err != nil {
		m.logg.Error(ctx, "order submission failed", err)
		return nil, err
	}
	m.logg.Info(m.logg.WithCartID(ctx, payload.CartID.String()), "order submitted")
	return confirmation, nil
}

func (m *Machine) loadSavedAddress(ctx context.Context) {
	if m.addresses == nil {
		return
	}
	saved, err := m.addresses.ShippingAddress(ctx)
	if err != nil {
		m.logg.Warn(ctx, "saved shipping address unavailable")
		return
	}
	if saved == nil {
		return
	}
	normalized := saved.Normalized()
	if err := validateStruct(normalized); err != nil {
		m.logg.Warn(ctx, "saved shipping address invalid")
		return
	}
	m.shipping = &normalized
}
