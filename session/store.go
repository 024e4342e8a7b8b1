package session

import (
	"context"
	"time"
)

// Grant is a short-lived authorization record tied to one external request
// ID. It gates the start of a transfer; the transfer itself may outlive it.
type Grant struct {
	ID          string
	RequestID   string
	RequesterID string
	Region      string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the grant is past its lifetime at now.
func (g Grant) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// Store persists grants and request-ID markers.
//
// Put must be atomic: either the grant and its request marker are both
// recorded or neither is, and a request ID that was ever recorded must be
// rejected with errors.ErrDuplicateRequest even after its grant is deleted.
type Store interface {
	// Put records the grant and claims its request ID.
	Put(ctx context.Context, grant Grant) error

	// Get returns the grant or errors.ErrGrantNotFound.
	Get(ctx context.Context, grantID string) (*Grant, error)

	// Used reports whether the request ID was ever claimed. It is a cheap
	// pre-check; Put stays the single-use authority.
	Used(ctx context.Context, requestID string) (bool, error)

	// Delete removes the grant. Deleting an absent grant is not an error,
	// and the request marker survives.
	Delete(ctx context.Context, grantID string) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
}
