package session

import (
	"context"
	"sync"
	"time"

	ferryerrors "github.com/fileferry/ferry/errors"
)

// MemoryStore keeps grants and request markers in process memory. It backs
// tests and single-process deployments; durable setups use DynamoStore.
//
// Expired entries are collected lazily on Put, so a long-lived process does
// not accumulate dead grants. Callers that issue grants rarely can run
// Sweep on their own schedule instead.
type MemoryStore struct {
	mu       sync.RWMutex
	grants   map[string]Grant
	requests map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		grants:   make(map[string]Grant),
		requests: make(map[string]time.Time),
	}
}

// Put records the grant, rejecting request IDs that were ever seen. The
// request marker is kept for markerRetention past the grant's issue time,
// matching the durable store.
func (s *MemoryStore) Put(_ context.Context, grant Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(grant.IssuedAt)
	if _, seen := s.requests[grant.RequestID]; seen {
		return ferryerrors.ErrDuplicateRequest
	}
	s.requests[grant.RequestID] = grant.IssuedAt.Add(markerRetention)
	s.grants[grant.ID] = grant
	return nil
}

// Get returns a copy of the grant.
func (s *MemoryStore) Get(_ context.Context, grantID string) (*Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	grant, ok := s.grants[grantID]
	if !ok {
		return nil, ferryerrors.ErrGrantNotFound
	}
	return &grant, nil
}

// Used reports whether the request ID has already been claimed.
func (s *MemoryStore) Used(_ context.Context, requestID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, seen := s.requests[requestID]
	return seen, nil
}

// Delete removes the grant but keeps the request marker.
func (s *MemoryStore) Delete(_ context.Context, grantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants, grantID)
	return nil
}

// Sweep drops grants past their expiry and request markers past their
// retention, and reports how many of each were removed.
func (s *MemoryStore) Sweep(now time.Time) (grants, markers int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweepLocked(now)
}

func (s *MemoryStore) sweepLocked(now time.Time) (grants, markers int) {
	for id, grant := range s.grants {
		if grant.Expired(now) {
			delete(s.grants, id)
			grants++
		}
	}
	for id, deadline := range s.requests {
		if !now.Before(deadline) {
			delete(s.requests, id)
			markers++
		}
	}
	return grants, markers
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}
