package session

import (
	"log/slog"
	"time"
)

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the grant lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock injects the time source, used by tests to control expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTicketFunc installs an external ticket check run before any grant is
// issued. The default accepts well-formed REQ and INC ticket identifiers.
func WithTicketFunc(fn TicketFunc) Option {
	return func(m *Manager) {
		if fn != nil {
			m.ticket = fn
		}
	}
}
