package cart

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/cartsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/logger"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/google/uuid"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testCart(ownerID uuid.UUID, quantities ...int) *Cart {
	c := &Cart{ID: uuid.New(), OwnerID: ownerID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	for _, qty := range quantities {
		c.Lines = append(c.Lines, Line{
			ID: uuid.New(),
			Product: types.ProductRef{
				ID:             uuid.New(),
				Name:           "OG Kush 1oz",
				Thumbnail:      "https://cdn.example/ogkush.jpg",
				BasePriceCents: 2500,
			},
			Quantity: qty,
		})
	}
	return c
}

// stubStore is a scriptable RemoteCartStore. Update calls can be gated so
// tests control when confirmations resolve.
type stubStore struct {
	mu   sync.Mutex
	cart *Cart

	updateErr error
	removeErr error
	clearErr  error
	fetchErr  error

	updateStarted chan int
	updateRelease chan error

	updates []int
	removes []uuid.UUID
	clears  int
	fetches int
}

func newStubStore(cart *Cart) *stubStore {
	return &stubStore{cart: cart.Clone()}
}

func (s *stubStore) Fetch(ctx context.Context, ownerID uuid.UUID) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.cart.Clone(), nil
}

func (s *stubStore) UpdateLineQuantity(ctx context.Context, cartID, lineID uuid.UUID, quantity int) (*Cart, error) {
	if s.updateStarted != nil {
		s.updateStarted <- quantity
	}
	var gateErr error
	if s.updateRelease != nil {
		gateErr = <-s.updateRelease
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, quantity)
	if gateErr != nil {
		return nil, gateErr
	}
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	for i := range s.cart.Lines {
		if s.cart.Lines[i].ID == lineID {
			s.cart.Lines[i].Quantity = quantity
		}
	}
	s.cart.UpdatedAt = time.Now()
	return s.cart.Clone(), nil
}

func (s *stubStore) RemoveLine(ctx context.Context, cartID, lineID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removes = append(s.removes, lineID)
	if s.removeErr != nil {
		return s.removeErr
	}
	for i := range s.cart.Lines {
		if s.cart.Lines[i].ID == lineID {
			s.cart.Lines = append(s.cart.Lines[:i], s.cart.Lines[i+1:]...)
			break
		}
	}
	return nil
}

func (s *stubStore) Clear(ctx context.Context, cartID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cart.Lines = nil
	return nil
}

func newTestCoordinator(t *testing.T, store *stubStore, ownerID uuid.UUID, opts ...Option) *Coordinator {
	t.Helper()
	coord, err := NewCoordinator(NewReplica(), store, StaticIdentity{ID: ownerID}, testLogger(), opts...)
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	if err := coord.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	return coord
}

func flush(t *testing.T, coord *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
}

func TestAdjustQuantityOptimisticThenConfirmed(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}

	// Optimistic write is visible before confirmation.
	line, ok := coord.Replica().Line(lineID)
	if !ok || line.Quantity != 3 {
		t.Fatalf("expected optimistic quantity 3, got %+v", line)
	}

	flush(t, coord)

	line, _ = coord.Replica().Line(lineID)
	if line.Quantity != 3 {
		t.Fatalf("expected confirmed quantity 3, got %d", line.Quantity)
	}
	if len(store.updates) != 1 || store.updates[0] != 3 {
		t.Fatalf("unexpected remote updates %v", store.updates)
	}
}

func TestAdjustQuantityFloorsAtOne(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	if err := coord.AdjustQuantity(context.Background(), lineID, -100); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	flush(t, coord)

	line, _ := coord.Replica().Line(lineID)
	if line.Quantity != 1 {
		t.Fatalf("expected floor quantity 1, got %d", line.Quantity)
	}

	// A decrement already at the floor is a pure no-op: no remote call.
	before := len(store.updates)
	if err := coord.AdjustQuantity(context.Background(), lineID, -1); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	flush(t, coord)
	if len(store.updates) != before {
		t.Fatalf("expected no remote call at the floor, got %v", store.updates)
	}
}

func TestAdjustQuantityRollbackRestoresSnapshotVerbatim(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	before, _ := coord.Replica().Line(lineID)
	store.updateErr = errors.New("network down")

	var gotRollback bool
	var mu sync.Mutex
	coord.listener = func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		if n.Status == enums.MutationStatusRolledBack {
			gotRollback = true
			if !pkgerrors.HasCode(n.Err, pkgerrors.CodeRemote) {
				t.Errorf("expected remote failure code, got %v", n.Err)
			}
		}
	}

	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	flush(t, coord)

	after, _ := coord.Replica().Line(lineID)
	if after.Quantity != before.Quantity {
		t.Fatalf("rollback mismatch: before=%d after=%d", before.Quantity, after.Quantity)
	}
	if after.Product != before.Product {
		t.Fatalf("rollback altered display fields: %+v vs %+v", after.Product, before.Product)
	}
	mu.Lock()
	defer mu.Unlock()
	if !gotRollback {
		t.Fatal("expected rollback notification")
	}
	if store.fetches < 2 {
		t.Fatalf("expected a refetch after rollback, fetches=%d", store.fetches)
	}
}

func TestSameLineIntentsSerializeInOrder(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	store.updateStarted = make(chan int, 2)
	store.updateRelease = make(chan error, 2)
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("first adjust failed: %v", err)
	}
	// First confirmation is still in flight; this one must queue.
	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("second adjust failed: %v", err)
	}

	first := <-store.updateStarted
	if first != 3 {
		t.Fatalf("expected first dispatch at quantity 3, got %d", first)
	}
	store.updateRelease <- nil

	second := <-store.updateStarted
	if second != 4 {
		t.Fatalf("expected second dispatch at quantity 4, got %d", second)
	}
	store.updateRelease <- nil

	flush(t, coord)

	line, _ := coord.Replica().Line(lineID)
	if line.Quantity != 4 {
		t.Fatalf("expected final quantity 4, got %d", line.Quantity)
	}
	if len(store.updates) != 2 || store.updates[0] != 3 || store.updates[1] != 4 {
		t.Fatalf("updates out of order: %v", store.updates)
	}
}

func TestDistinctLinesConfirmIndependently(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2, 5)
	store := newStubStore(server)
	coord := newTestCoordinator(t, store, owner)

	if err := coord.AdjustQuantity(context.Background(), server.Lines[0].ID, 1); err != nil {
		t.Fatalf("adjust a failed: %v", err)
	}
	if err := coord.AdjustQuantity(context.Background(), server.Lines[1].ID, -2); err != nil {
		t.Fatalf("adjust b failed: %v", err)
	}
	flush(t, coord)

	a, _ := coord.Replica().Line(server.Lines[0].ID)
	b, _ := coord.Replica().Line(server.Lines[1].ID)
	if a.Quantity != 3 || b.Quantity != 3 {
		t.Fatalf("unexpected quantities a=%d b=%d", a.Quantity, b.Quantity)
	}
}

func TestRemoveLineOptimisticallyEmptiesView(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 1)
	store := newStubStore(server)
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	if err := coord.RemoveLine(context.Background(), lineID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	// Empty immediately, before any network confirmation.
	if !coord.Replica().IsEmpty() {
		t.Fatal("expected optimistic empty cart")
	}

	flush(t, coord)
	if !coord.Replica().IsEmpty() {
		t.Fatal("expected cart to stay empty after confirmation")
	}
	if len(store.removes) != 1 || store.removes[0] != lineID {
		t.Fatalf("unexpected remote removes %v", store.removes)
	}
}

func TestRemoveLineFailureResyncsFromRemote(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	store.removeErr = errors.New("boom")
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	if err := coord.RemoveLine(context.Background(), lineID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	flush(t, coord)

	// The refetch restored the line the failed delete optimistically dropped.
	line, ok := coord.Replica().Line(lineID)
	if !ok || line.Quantity != 2 {
		t.Fatalf("expected resynced line, got ok=%v line=%+v", ok, line)
	}
}

func TestClearCartWaitsForInflightMutations(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	store.updateStarted = make(chan int, 1)
	store.updateRelease = make(chan error, 1)
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	<-store.updateStarted

	if err := coord.ClearCart(context.Background()); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	store.mu.Lock()
	clearsBefore := store.clears
	store.mu.Unlock()
	if clearsBefore != 0 {
		t.Fatal("clear must not dispatch while a line mutation is in flight")
	}

	store.updateRelease <- nil
	flush(t, coord)

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.clears != 1 {
		t.Fatalf("expected exactly one clear, got %d", store.clears)
	}
	if !coord.Replica().IsEmpty() {
		t.Fatal("expected empty replica after clear")
	}
}

func TestUnauthenticatedMutationsAreRefused(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	coord, err := NewCoordinator(NewReplica(), store, AnonymousIdentity{}, testLogger())
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}

	if err := coord.AdjustQuantity(context.Background(), server.Lines[0].ID, 1); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized refusal, got %v", err)
	}
	if err := coord.RemoveLine(context.Background(), server.Lines[0].ID); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized refusal, got %v", err)
	}
	if err := coord.ClearCart(context.Background()); !pkgerrors.HasCode(err, pkgerrors.CodeUnauthorized) {
		t.Fatalf("expected unauthorized refusal, got %v", err)
	}
	if len(store.updates) != 0 || len(store.removes) != 0 || store.clears != 0 {
		t.Fatal("refused mutations must not reach the remote store")
	}
}

func TestAdjustUnknownLineReportsNotFound(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	coord := newTestCoordinator(t, store, owner)

	err := coord.AdjustQuantity(context.Background(), uuid.New(), 1)
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	flush(t, coord)
	if store.fetches < 2 {
		t.Fatalf("expected a resync refetch, fetches=%d", store.fetches)
	}
}

func TestIntentQueuedBehindPendingClearResolves(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2, 5)
	store := newStubStore(server)
	store.updateStarted = make(chan int, 1)
	store.updateRelease = make(chan error, 1)
	coord := newTestCoordinator(t, store, owner)
	lineA := server.Lines[0].ID
	lineB := server.Lines[1].ID

	var mu sync.Mutex
	var outcomes []Notification
	coord.listener = func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		outcomes = append(outcomes, n)
	}

	if err := coord.AdjustQuantity(context.Background(), lineA, 1); err != nil {
		t.Fatalf("adjust a failed: %v", err)
	}
	<-store.updateStarted

	if err := coord.ClearCart(context.Background()); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	// Accepted while the clear waits for quiescence. It must resolve with an
	// outcome notification, not vanish.
	if err := coord.AdjustQuantity(context.Background(), lineB, 1); err != nil {
		t.Fatalf("adjust b failed: %v", err)
	}

	store.updateRelease <- nil
	flush(t, coord)

	mu.Lock()
	defer mu.Unlock()
	var sawB bool
	for _, n := range outcomes {
		if n.LineID != lineB {
			continue
		}
		sawB = true
		if n.Status != enums.MutationStatusFailed || !pkgerrors.HasCode(n.Err, pkgerrors.CodeNotFound) {
			t.Fatalf("expected not-found failure for the cleared line, got %+v", n)
		}
	}
	if !sawB {
		t.Fatal("intent queued behind the clear resolved without any notification")
	}
	if len(store.updates) != 1 {
		t.Fatalf("cleared line must not reach the remote store, updates=%v", store.updates)
	}
}

func TestQueuedIntentOnVanishedLineResyncs(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	store.updateStarted = make(chan int, 1)
	store.updateRelease = make(chan error, 1)
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	var mu sync.Mutex
	var failed *Notification
	coord.listener = func(n Notification) {
		mu.Lock()
		defer mu.Unlock()
		if n.Status == enums.MutationStatusFailed && n.LineID == lineID {
			copied := n
			failed = &copied
		}
	}

	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	<-store.updateStarted
	// Both queue behind the in-flight adjust; the second finds its line gone.
	if err := coord.RemoveLine(context.Background(), lineID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("queued adjust failed: %v", err)
	}

	store.updateRelease <- nil
	flush(t, coord)

	mu.Lock()
	if failed == nil {
		t.Fatal("expected a failure notification for the vanished line")
	}
	if !pkgerrors.HasCode(failed.Err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not-found, got %v", failed.Err)
	}
	mu.Unlock()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.fetches < 2 {
		t.Fatalf("expected a resync refetch, fetches=%d", store.fetches)
	}
}

func TestMergePreservesDisplayFieldsServerOmits(t *testing.T) {
	t.Parallel()

	owner := uuid.New()
	server := testCart(owner, 2)
	store := newStubStore(server)
	// The server strips display fields from its responses.
	for i := range store.cart.Lines {
		store.cart.Lines[i].Product.Name = ""
		store.cart.Lines[i].Product.Thumbnail = ""
	}
	coord := newTestCoordinator(t, store, owner)
	lineID := server.Lines[0].ID

	// Seed the replica's display cache from the original fetch.
	coord.replica.replace(server)

	if err := coord.AdjustQuantity(context.Background(), lineID, 1); err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	flush(t, coord)

	line, _ := coord.Replica().Line(lineID)
	if line.Quantity != 3 {
		t.Fatalf("expected server quantity 3, got %d", line.Quantity)
	}
	if line.Product.Name != "OG Kush 1oz" || line.Product.Thumbnail == "" {
		t.Fatalf("display cache lost during merge: %+v", line.Product)
	}
}
