package cart

import (
	"context"

	"github.com/google/uuid"
)

// StaticIdentity is a SessionIdentity pinned to one owner for the lifetime of
// a session. A nil owner id reads as unauthenticated.
type StaticIdentity struct {
	ID uuid.UUID
}

// OwnerID implements SessionIdentity.
func (s StaticIdentity) OwnerID(context.Context) (uuid.UUID, bool) {
	if s.ID == uuid.Nil {
		return uuid.Nil, false
	}
	return s.ID, true
}

// AnonymousIdentity always reads as unauthenticated.
type AnonymousIdentity struct{}

// OwnerID implements SessionIdentity.
func (AnonymousIdentity) OwnerID(context.Context) (uuid.UUID, bool) {
	return uuid.Nil, false
}
