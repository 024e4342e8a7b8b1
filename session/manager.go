// Package session issues, validates, and revokes the short-lived grants
// that gate transfer authorization, and enforces single use of request IDs.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/internal/validation"
)

// DefaultTTL is how long an issued grant stays valid. The TTL bounds the
// window between issuing a grant and starting the transfer, not the transfer
// itself.
const DefaultTTL = 10 * time.Second

// TicketFunc checks an external request/ticket ID before a grant is issued.
type TicketFunc func(ctx context.Context, requestID string) error

// Manager is the authorization front door. It issues one grant per request
// ID, captures the underlying credentials from the identity provider, and
// hands them out exactly through CredentialsFor. All validity decisions fail
// closed: a store error denies rather than allows.
type Manager struct {
	store    Store
	identity IdentityProvider
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger
	ticket   TicketFunc

	mu    sync.Mutex
	creds map[string]ferrytypes.Credentials
}

// NewManager builds a Manager over the given store and identity provider.
func NewManager(store Store, identity IdentityProvider, opts ...Option) (*Manager, error) {
	const op = "session.new"
	if store == nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("store is required")
	}
	if identity == nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("identity provider is required")
	}
	m := &Manager{
		store:    store,
		identity: identity,
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   slog.Default(),
		creds:    make(map[string]ferrytypes.Credentials),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Authenticate issues a grant for the request ID and captures the underlying
// credentials. A request ID that was ever used before is rejected with a
// duplicate-request error, no matter how its earlier grant ended.
func (m *Manager) Authenticate(ctx context.Context, requesterID, requestID, region string) (*Grant, error) {
	const op = "session.authenticate"

	if err := m.checkTicket(ctx, requestID); err != nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, ferryerrors.ErrInvalidRequest).
			WithMessage(err.Error()).
			WithRequestID(requestID)
	}
	if requesterID == "" {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, ferryerrors.ErrInvalidRequest).
			WithMessage("requester id is required").
			WithRequestID(requestID)
	}

	// Reject an obvious replay before minting credentials; the identity
	// round trip is the expensive part. Put below remains the authority.
	used, err := m.store.Used(ctx, requestID)
	if err != nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindSessionStore, err).
			WithRequestID(requestID)
	}
	if used {
		return nil, ferryerrors.NewError(op, ferryerrors.KindDuplicateRequest, ferryerrors.ErrDuplicateRequest).
			WithRequestID(requestID)
	}

	creds, err := m.identity.Credentials(ctx, region)
	if err != nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindAuthorization, err).
			WithRequestID(requestID)
	}

	now := m.now()
	grant := Grant{
		ID:          uuid.NewString(),
		RequestID:   requestID,
		RequesterID: requesterID,
		Region:      region,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.ttl),
	}
	if err := m.store.Put(ctx, grant); err != nil {
		if errors.Is(err, ferryerrors.ErrDuplicateRequest) {
			return nil, ferryerrors.NewError(op, ferryerrors.KindDuplicateRequest, ferryerrors.ErrDuplicateRequest).
				WithRequestID(requestID)
		}
		return nil, ferryerrors.NewError(op, ferryerrors.KindSessionStore, err).
			WithRequestID(requestID)
	}

	m.mu.Lock()
	m.creds[grant.ID] = creds
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "grant issued",
		"grant_id", grant.ID,
		"request_id", grant.RequestID,
		"expires_at", grant.ExpiresAt,
	)
	return &grant, nil
}

func (m *Manager) checkTicket(ctx context.Context, requestID string) error {
	if m.ticket != nil {
		return m.ticket(ctx, requestID)
	}
	if err := validation.ValidateRequestID(requestID); err != nil {
		return err
	}
	// The default policy accepts only ticketing-system identifiers: service
	// requests and incidents.
	if !strings.HasPrefix(requestID, "REQ") && !strings.HasPrefix(requestID, "INC") {
		return fmt.Errorf("request id %q is not a REQ or INC ticket", requestID)
	}
	return nil
}

// IsValid reports whether the grant exists and has not expired. It fails
// closed: any store failure reads as invalid.
func (m *Manager) IsValid(ctx context.Context, grantID string) bool {
	_, err := m.validate(ctx, grantID)
	return err == nil
}

// CredentialsFor returns the credentials captured at Authenticate time,
// provided the grant is still valid. This is the only path that hands out
// credentials; callers capture them once and do not poll.
func (m *Manager) CredentialsFor(ctx context.Context, grantID string) (ferrytypes.Credentials, error) {
	const op = "session.credentials"

	if _, err := m.validate(ctx, grantID); err != nil {
		return ferrytypes.Credentials{}, err
	}

	m.mu.Lock()
	creds, ok := m.creds[grantID]
	m.mu.Unlock()
	if !ok {
		return ferrytypes.Credentials{}, ferryerrors.NewError(op, ferryerrors.KindAuthorization, ferryerrors.ErrGrantNotFound).
			WithMessage("no captured credentials for grant")
	}
	return creds, nil
}

// validate resolves the grant and checks expiry against the injected clock.
// A grant past its TTL is invalid even if the store has not collected the
// record yet.
func (m *Manager) validate(ctx context.Context, grantID string) (*Grant, error) {
	const op = "session.validate"

	if grantID == "" {
		return nil, ferryerrors.NewError(op, ferryerrors.KindAuthorization, ferryerrors.ErrGrantNotFound).
			WithMessage("empty grant id")
	}
	grant, err := m.store.Get(ctx, grantID)
	if err != nil {
		if errors.Is(err, ferryerrors.ErrGrantNotFound) {
			return nil, ferryerrors.NewError(op, ferryerrors.KindAuthorization, ferryerrors.ErrGrantNotFound)
		}
		return nil, ferryerrors.NewError(op, ferryerrors.KindSessionStore, err)
	}
	if grant.Expired(m.now()) {
		return nil, ferryerrors.NewError(op, ferryerrors.KindAuthorization, ferryerrors.ErrGrantExpired)
	}
	return grant, nil
}

// Revoke deletes the grant and drops its captured credentials. Revoking an
// unknown or already revoked grant succeeds; the request marker stays so the
// request ID cannot be replayed.
func (m *Manager) Revoke(ctx context.Context, grantID string) error {
	const op = "session.revoke"

	if grantID == "" {
		return nil
	}
	m.mu.Lock()
	delete(m.creds, grantID)
	m.mu.Unlock()

	if err := m.store.Delete(ctx, grantID); err != nil {
		return ferryerrors.NewError(op, ferryerrors.KindSessionStore, err)
	}
	m.logger.DebugContext(ctx, "grant revoked", "grant_id", grantID)
	return nil
}

// Ping reports whether the grant store is reachable. The engine uses it as
// a liveness probe while a transfer is streaming.
func (m *Manager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return ferryerrors.NewError("session.ping", ferryerrors.KindSessionStore, err)
	}
	return nil
}

// TTL returns the configured grant lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}
