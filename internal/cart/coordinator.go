package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/cartsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/metrics"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// RemoteCartStore is the authoritative backend boundary. All calls are
// idempotent at the identifier level.
type RemoteCartStore interface {
	Fetch(ctx context.Context, ownerID uuid.UUID) (*Cart, error)
	UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, quantity int) (*Cart, error)
	RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
}

// SessionIdentity supplies the owner scope for cart operations. A missing
// identity turns every mutation intent into an authentication-required
// refusal before any optimistic write.
type SessionIdentity interface {
	OwnerID(ctx context.Context) (uuid.UUID, bool)
}

// Notification reports a mutation outcome to the UI surfaces following the
// replica. Err is non-nil for refusals, rollbacks, and refetch failures.
type Notification struct {
	Kind   enums.MutationKind
	Status enums.MutationStatus
	LineID uuid.UUID
	Err    error
}

// Listener receives notifications outside any internal lock.
type Listener func(Notification)

type queuedIntent struct {
	kind    enums.MutationKind
	delta   int
	ownerID uuid.UUID
}

// Coordinator is the single writer of the replica. It applies mutation
// intents optimistically, dispatches the matching remote call off the event
// path, and reconciles the response. Intents for the same line are strictly
// serialized; distinct lines confirm independently.
type Coordinator struct {
	replica  *Replica
	store    RemoteCartStore
	identity SessionIdentity
	logg     *logger.Logger
	metrics  *metrics.MutationMetrics
	listener Listener

	mu         sync.Mutex
	inflight   map[uuid.UUID]struct{}
	queues     map[uuid.UUID][]queuedIntent
	clearOwner *uuid.UUID
	wg         sync.WaitGroup
}

// NewCoordinator wires the coordinator to its replica and collaborators.
func NewCoordinator(replica *Replica, store RemoteCartStore, identity SessionIdentity, logg *logger.Logger, opts ...Option) (*Coordinator, error) {
	if replica == nil {
		return nil, fmt.Errorf("replica required")
	}
	if store == nil {
		return nil, fmt.Errorf("remote cart store required")
	}
	if identity == nil {
		return nil, fmt.Errorf("session identity required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	c := &Coordinator{
		replica:  replica,
		store:    store,
		identity: identity,
		logg:     logg,
		inflight: make(map[uuid.UUID]struct{}),
		queues:   make(map[uuid.UUID][]queuedIntent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Option customizes optional coordinator collaborators.
type Option func(*Coordinator)

// WithMetrics attaches mutation metrics.
func WithMetrics(mm *metrics.MutationMetrics) Option {
	return func(c *Coordinator) { c.metrics = mm }
}

// WithListener attaches a notification listener.
func WithListener(listener Listener) Option {
	return func(c *Coordinator) { c.listener = listener }
}

// Replica exposes the read surface shared by rendering call sites.
func (c *Coordinator) Replica() *Replica {
	return c.replica
}

// Refresh fetches the authoritative cart and replaces the replica wholesale.
// It is the session's first read and the safe fallback after any failure.
func (c *Coordinator) Refresh(ctx context.Context) error {
	ownerID, ok := c.identity.OwnerID(ctx)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "no identity for cart fetch")
	}
	fresh, err := c.store.Fetch(ctx, ownerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemote, err, "fetch cart")
	}
	if err := fresh.Validate(); err != nil {
		return err
	}
	c.replica.replace(fresh)
	return nil
}

// AdjustQuantity changes a line's quantity by delta, flooring at 1. A second
// intent for a line with an in-flight mutation is queued, not raced.
func (c *Coordinator) AdjustQuantity(ctx context.Context, lineID uuid.UUID, delta int) error {
	ownerID, ok := c.identity.OwnerID(ctx)
	if !ok {
		return c.refuse(enums.MutationKindAdjustQuantity, lineID,
			pkgerrors.New(pkgerrors.CodeUnauthorized, "no identity for cart mutation"))
	}
	if delta == 0 {
		return nil
	}

	c.mu.Lock()
	if c.busyLocked(lineID) {
		c.queues[lineID] = append(c.queues[lineID], queuedIntent{kind: enums.MutationKindAdjustQuantity, delta: delta, ownerID: ownerID})
		c.mu.Unlock()
		return nil
	}
	pending, err := c.startAdjustLocked(lineID, delta)
	c.mu.Unlock()
	if err != nil {
		c.scheduleRefetch(ctx, ownerID)
		return c.refuse(enums.MutationKindAdjustQuantity, lineID, err)
	}
	if pending == nil {
		// Already at the floor, nothing to send.
		return nil
	}

	c.notify(Notification{Kind: pending.Kind, Status: enums.MutationStatusInFlight, LineID: lineID})
	go c.confirmAdjust(context.WithoutCancel(ctx), ownerID, pending)
	return nil
}

// RemoveLine optimistically filters the line out and dispatches the remote
// delete. A failed delete falls back to a full refetch.
func (c *Coordinator) RemoveLine(ctx context.Context, lineID uuid.UUID) error {
	ownerID, ok := c.identity.OwnerID(ctx)
	if !ok {
		return c.refuse(enums.MutationKindRemoveLine, lineID,
			pkgerrors.New(pkgerrors.CodeUnauthorized, "no identity for cart mutation"))
	}

	c.mu.Lock()
	if c.busyLocked(lineID) {
		c.queues[lineID] = append(c.queues[lineID], queuedIntent{kind: enums.MutationKindRemoveLine, ownerID: ownerID})
		c.mu.Unlock()
		return nil
	}
	pending, err := c.startRemoveLocked(lineID)
	c.mu.Unlock()
	if err != nil {
		c.scheduleRefetch(ctx, ownerID)
		return c.refuse(enums.MutationKindRemoveLine, lineID, err)
	}

	c.notify(Notification{Kind: pending.Kind, Status: enums.MutationStatusInFlight, LineID: lineID})
	go c.confirmRemove(context.WithoutCancel(ctx), ownerID, pending)
	return nil
}

// ClearCart optimistically empties the replica and dispatches the remote
// clear-all. While any per-line mutation is in flight the clear waits for
// quiescence so confirmations cannot resurrect cleared lines.
func (c *Coordinator) ClearCart(ctx context.Context) error {
	ownerID, ok := c.identity.OwnerID(ctx)
	if !ok {
		return c.refuse(enums.MutationKindClearCart, uuid.Nil,
			pkgerrors.New(pkgerrors.CodeUnauthorized, "no identity for cart mutation"))
	}

	c.mu.Lock()
	if len(c.inflight) > 0 {
		owner := ownerID
		c.clearOwner = &owner
		c.mu.Unlock()
		return nil
	}
	pending := c.startClearLocked()
	c.mu.Unlock()
	if pending == nil {
		return nil
	}

	c.notify(Notification{Kind: pending.Kind, Status: enums.MutationStatusInFlight})
	go c.confirmClear(context.WithoutCancel(ctx), ownerID, pending)
	return nil
}

// Flush blocks until every in-flight and queued mutation has resolved.
func (c *Coordinator) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) busyLocked(lineID uuid.UUID) bool {
	if _, busy := c.inflight[lineID]; busy {
		return true
	}
	if _, clearing := c.inflight[clearLineKey]; clearing {
		return true
	}
	return c.clearOwner != nil
}

// startAdjustLocked validates the intent against the current replica state
// and applies it optimistically. A nil pending with nil error means the
// intent collapsed to a no-op at the quantity floor.
func (c *Coordinator) startAdjustLocked(lineID uuid.UUID, delta int) (*PendingMutation, error) {
	line, ok := c.replica.Line(lineID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	newQty := line.Quantity + delta
	if newQty < 1 {
		newQty = 1
	}
	if delta < 0 && newQty == line.Quantity {
		return nil, nil
	}

	pending := newAdjustPending(line, delta, newQty)
	c.replica.applyQuantity(lineID, newQty)
	c.replica.setPending(pending)
	c.inflight[lineID] = struct{}{}
	c.wg.Add(1)
	return pending, nil
}

func (c *Coordinator) startRemoveLocked(lineID uuid.UUID) (*PendingMutation, error) {
	line, ok := c.replica.Line(lineID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}

	pending := newRemovePending(line)
	c.replica.removeLine(lineID)
	c.replica.setPending(pending)
	c.inflight[lineID] = struct{}{}
	c.wg.Add(1)
	return pending, nil
}

func (c *Coordinator) startClearLocked() *PendingMutation {
	c.clearOwner = nil
	snapshot := c.replica.Snapshot()
	if snapshot.IsEmpty() {
		return nil
	}
	pending := newClearPending(snapshot)
	c.replica.clearLines()
	c.replica.setPending(pending)
	c.inflight[clearLineKey] = struct{}{}
	c.wg.Add(1)
	return pending
}

func (c *Coordinator) confirmAdjust(ctx context.Context, ownerID uuid.UUID, pending *PendingMutation) {
	ctx = c.logg.WithLineID(ctx, pending.LineID.String())
	cartID, _ := c.replica.CartID()

	server, err := c.store.UpdateLineQuantity(ctx, cartID, pending.LineID, pending.TargetQuantity)
	if err == nil {
		c.replica.mergeConfirmedLine(pending.LineID, server)
		c.replica.clearPending(pending.LineID)
		c.metrics.IncConfirmed(pending.Kind.String())
		c.metrics.ObserveConfirmLatency(pending.Kind.String(), time.Since(pending.IssuedAt))
		c.notify(Notification{Kind: pending.Kind, Status: enums.MutationStatusSucceeded, LineID: pending.LineID})
	} else {
		c.logg.Warn(ctx, "quantity update failed, rolling back")
		c.replica.restoreLine(*pending.PrevLine, c.replica.linePosition(pending.LineID))
		c.replica.clearPending(pending.LineID)
		c.metrics.IncRolledBack(pending.Kind.String())
		if refetchErr := c.refetch(ctx, ownerID); refetchErr != nil {
			err = multierr.Combine(err, refetchErr)
		}
		c.notify(Notification{
			Kind:   pending.Kind,
			Status: enums.MutationStatusRolledBack,
			LineID: pending.LineID,
			Err:    pkgerrors.Wrap(pkgerrors.CodeRemote, err, "update line quantity"),
		})
	}

	c.finish(pending.LineID)
}

func (c *Coordinator) confirmRemove(ctx context.Context, ownerID uuid.UUID, pending *PendingMutation) {
	ctx = c.logg.WithLineID(ctx, pending.LineID.String())
	cartID, _ := c.replica.CartID()

	err := c.store.RemoveLine(ctx, cartID, pending.LineID)
	c.replica.clearPending(pending.LineID)
	if err == nil {
		c.metrics.IncConfirmed(pending.Kind.String())
		c.metrics.ObserveConfirmLatency(pending.Kind.String(), time.Since(pending.IssuedAt))
		c.notify(Notification{Kind: pending.Kind, Status: enums.MutationStatusSucceeded, LineID: pending.LineID})
	} else {
		// No partial re-insert; a full resync is cheap and safe.
		c.logg.Warn(ctx, "line removal failed, resyncing")
		c.metrics.IncRolledBack(pending.Kind.String())
		if refetchErr := c.refetch(ctx, ownerID); refetchErr != nil {
			err = multierr.Combine(err, refetchErr)
		}
		c.notify(Notification{
			Kind:   pending.Kind,
			Status: enums.MutationStatusFailed,
			LineID: pending.LineID,
			Err:    pkgerrors.Wrap(pkgerrors.CodeRemote, err, "remove line"),
		})
	}

	c.finish(pending.LineID)
}

func (c *Coordinator) confirmClear(ctx context.Context, ownerID uuid.UUID, pending *PendingMutation) {
	cartID, _ := c.replica.CartID()

	err := c.store.Clear(ctx, cartID)
	c.replica.clearPending(pending.LineID)
	if err == nil {
		c.metrics.IncConfirmed(pending.Kind.String())
		c.metrics.ObserveConfirmLatency(pending.Kind.String(), time.Since(pending.IssuedAt))
		c.notify(Notification{Kind: pending.Kind, Status: enums.MutationStatusSucceeded})
	} else {
		c.logg.Warn(ctx, "cart clear failed, resyncing")
		c.replica.restoreCart(pending.PrevCart)
		c.metrics.IncRolledBack(pending.Kind.String())
		if refetchErr := c.refetch(ctx, ownerID); refetchErr != nil {
			err = multierr.Combine(err, refetchErr)
		}
		c.notify(Notification{
			Kind:   pending.Kind,
			Status: enums.MutationStatusFailed,
			Err:    pkgerrors.Wrap(pkgerrors.CodeRemote, err, "clear cart"),
		})
	}

	c.finish(pending.LineID)
}

// finish releases the line and starts the next queued intent, if any, before
// signalling completion so Flush never releases with work still queued. When
// a clear-all resolves it drains every per-line queue, so intents accepted
// while the clear was pending cannot sit stranded.
func (c *Coordinator) finish(lineID uuid.UUID) {
	ctx := context.Background()

	type launch struct {
		pending *PendingMutation
		ownerID uuid.UUID
	}
	var starts []launch
	var failures []Notification
	var refetchOwner *uuid.UUID

	c.mu.Lock()
	delete(c.inflight, lineID)

	drain := func(id uuid.UUID) {
		for len(c.queues[id]) > 0 {
			intent := c.queues[id][0]
			c.queues[id] = c.queues[id][1:]

			var pending *PendingMutation
			var err error
			switch intent.kind {
			case enums.MutationKindAdjustQuantity:
				pending, err = c.startAdjustLocked(id, intent.delta)
			case enums.MutationKindRemoveLine:
				pending, err = c.startRemoveLocked(id)
			}
			if err != nil {
				// The line vanished while this intent sat queued.
				owner := intent.ownerID
				refetchOwner = &owner
				failures = append(failures, Notification{Kind: intent.kind, Status: enums.MutationStatusFailed, LineID: id, Err: err})
				continue
			}
			if pending == nil {
				continue
			}
			starts = append(starts, launch{pending: pending, ownerID: intent.ownerID})
			break
		}
		if len(c.queues[id]) == 0 {
			delete(c.queues, id)
		}
	}

	drain(lineID)
	if lineID == clearLineKey {
		for id := range c.queues {
			if id != clearLineKey {
				drain(id)
			}
		}
	}

	var clear *PendingMutation
	var clearOwnerID uuid.UUID
	if len(starts) == 0 && c.clearOwner != nil && len(c.inflight) == 0 {
		clearOwnerID = *c.clearOwner
		clear = c.startClearLocked()
		if clear == nil {
			// Nothing to clear; drain stragglers queued behind it now.
			for id := range c.queues {
				drain(id)
			}
		}
	}
	c.mu.Unlock()

	for _, n := range failures {
		c.notify(n)
	}
	if refetchOwner != nil {
		c.scheduleRefetch(ctx, *refetchOwner)
	}
	for _, s := range starts {
		c.notify(Notification{Kind: s.pending.Kind, Status: enums.MutationStatusInFlight, LineID: s.pending.LineID})
		switch s.pending.Kind {
		case enums.MutationKindAdjustQuantity:
			go c.confirmAdjust(ctx, s.ownerID, s.pending)
		case enums.MutationKindRemoveLine:
			go c.confirmRemove(ctx, s.ownerID, s.pending)
		}
	}
	if clear != nil {
		c.notify(Notification{Kind: clear.Kind, Status: enums.MutationStatusInFlight})
		go c.confirmClear(ctx, clearOwnerID, clear)
	}

	c.wg.Done()
}

// refetch resyncs the replica after a failure. A refetch that itself fails
// leaves the rolled-back state in place and returns the error for the caller
// to surface.
func (c *Coordinator) refetch(ctx context.Context, ownerID uuid.UUID) error {
	c.metrics.IncRefetch()
	fresh, err := c.store.Fetch(ctx, ownerID)
	if err != nil {
		c.logg.Error(ctx, "cart refetch failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeRemote, err, "refetch cart")
	}
	c.replica.replace(fresh)
	return nil
}

func (c *Coordinator) scheduleRefetch(ctx context.Context, ownerID uuid.UUID) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.refetch(context.WithoutCancel(ctx), ownerID); err != nil {
			c.notifyAsync(Notification{Status: enums.MutationStatusFailed, Err: err})
		}
	}()
}

func (c *Coordinator) refuse(kind enums.MutationKind, lineID uuid.UUID, err error) error {
	c.metrics.IncRefused(kind.String())
	c.notify(Notification{Kind: kind, Status: enums.MutationStatusFailed, LineID: lineID, Err: err})
	return err
}

func (c *Coordinator) notify(n Notification) {
	if c.listener != nil {
		c.listener(n)
	}
}

// notifyAsync delivers a notification without holding internal locks.
func (c *Coordinator) notifyAsync(n Notification) {
	if c.listener == nil {
		return
	}
	go c.listener(n)
}
