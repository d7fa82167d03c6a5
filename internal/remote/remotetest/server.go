// Package remotetest hosts an in-memory authoritative cart store behind the
// same wire contract the HTTP adapter speaks. It backs adapter tests and
// local development; failure and latency injection are scriptable per
// operation.
package remotetest

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/angelmondragon/cartsync/internal/cart"
	pkgerrors "github.com/angelmondragon/cartsync/pkg/errors"
	"github.com/angelmondragon/cartsync/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Operation names used for call counting and failure injection.
const (
	OpFetch  = "fetch"
	OpUpdate = "update"
	OpRemove = "remove"
	OpClear  = "clear"
)

// Server is the in-memory authoritative store.
type Server struct {
	mu       sync.Mutex
	byOwner  map[uuid.UUID]*cart.Cart
	byID     map[uuid.UUID]*cart.Cart
	failures map[string]int
	failCode pkgerrors.Code
	latency  time.Duration
	calls    map[string]int
}

// NewServer builds an empty store.
func NewServer() *Server {
	return &Server{
		byOwner:  make(map[uuid.UUID]*cart.Cart),
		byID:     make(map[uuid.UUID]*cart.Cart),
		failures: make(map[string]int),
		failCode: pkgerrors.CodeRemote,
		calls:    make(map[string]int),
	}
}

// Seed installs a cart as the authoritative copy for its owner.
func (s *Server) Seed(c *cart.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := c.Clone()
	s.byOwner[clone.OwnerID] = clone
	s.byID[clone.ID] = clone
}

// Cart returns a copy of the authoritative cart.
func (s *Server) Cart(cartID uuid.UUID) *cart.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[cartID].Clone()
}

// FailNext makes the next n calls of op fail with the given code.
func (s *Server) FailNext(op string, n int, code pkgerrors.Code) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
	s.failCode = code
}

// SetLatency delays every handled request.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = d
}

// Calls reports how many times op was handled, injected failures included.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Handler returns the chi router for the store's wire surface.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/owners/{ownerID}/cart", s.handleFetch)
	r.Route("/carts/{cartID}", func(r chi.Router) {
		r.Put("/lines/{lineID}", s.handleUpdate)
		r.Delete("/lines/{lineID}", s.handleRemove)
		r.Delete("/lines", s.handleClear)
	})
	return r
}

// begin records the call, applies latency, and pops an injected failure.
func (s *Server) begin(op string) error {
	s.mu.Lock()
	s.calls[op]++
	latency := s.latency
	var injected error
	if s.failures[op] > 0 {
		s.failures[op]--
		injected = pkgerrors.New(s.failCode, "injected failure")
	}
	s.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}
	return injected
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	if err := s.begin(OpFetch); err != nil {
		writeError(w, err)
		return
	}
	ownerID, err := uuid.Parse(chi.URLParam(r, "ownerID"))
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "invalid owner id"))
		return
	}

	s.mu.Lock()
	owned, ok := s.byOwner[ownerID]
	if !ok {
		// First read for a session creates the cart server-side.
		owned = &cart.Cart{ID: uuid.New(), OwnerID: ownerID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		s.byOwner[ownerID] = owned
		s.byID[owned.ID] = owned
	}
	clone := owned.Clone()
	s.mu.Unlock()

	writeSuccess(w, clone)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if err := s.begin(OpUpdate); err != nil {
		writeError(w, err)
		return
	}
	cartID, lineID, err := parseIDs(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "invalid request body"))
		return
	}
	if body.Quantity < 1 {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "quantity below floor"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[cartID]
	if !ok {
		writeError(w, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found"))
		return
	}
	found := false
	for i := range stored.Lines {
		if stored.Lines[i].ID == lineID {
			stored.Lines[i].Quantity = body.Quantity
			found = true
			break
		}
	}
	if !found {
		writeError(w, pkgerrors.New(pkgerrors.CodeNotFound, "line not found"))
		return
	}
	stored.UpdatedAt = time.Now()
	writeSuccess(w, stored.Clone())
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.begin(OpRemove); err != nil {
		writeError(w, err)
		return
	}
	cartID, lineID, err := parseIDs(r)
	if err != nil {
		writeError(w, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[cartID]
	if !ok {
		writeError(w, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found"))
		return
	}
	kept := stored.Lines[:0]
	for _, line := range stored.Lines {
		if line.ID != lineID {
			kept = append(kept, line)
		}
	}
	stored.Lines = kept
	stored.UpdatedAt = time.Now()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.begin(OpClear); err != nil {
		writeError(w, err)
		return
	}
	cartID, err := uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		writeError(w, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart id"))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.byID[cartID]
	if !ok {
		writeError(w, pkgerrors.New(pkgerrors.CodeNotFound, "cart not found"))
		return
	}
	stored.Lines = nil
	stored.UpdatedAt = time.Now()
	w.WriteHeader(http.StatusNoContent)
}

func parseIDs(r *http.Request) (cartID, lineID uuid.UUID, err error) {
	cartID, err = uuid.Parse(chi.URLParam(r, "cartID"))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart id")
	}
	lineID, err = uuid.Parse(chi.URLParam(r, "lineID"))
	if err != nil {
		return uuid.Nil, uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid line id")
	}
	return cartID, lineID, nil
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(types.SuccessEnvelope{Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(meta.HTTPStatus)
	json.NewEncoder(w).Encode(types.ErrorEnvelope{Error: types.APIError{
		Code:    string(typed.Code()),
		Message: typed.Message(),
	}})
}
