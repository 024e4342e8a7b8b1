package ferry

import (
	"hash"
	"log/slog"
	"time"

	"github.com/fileferry/ferry/creds"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/tracker"
)

// Option adjusts an Engine.
type Option func(*Engine)

// WithLogger replaces the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithRegion sets the storage region passed to authentication.
func WithRegion(region string) Option {
	return func(e *Engine) { e.region = region }
}

// WithJobTimeout bounds one transfer end to end. The grant TTL still gates
// only the authorization step.
func WithJobTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.jobTimeout = d
		}
	}
}

// WithWatchdogInterval sets how often streaming re-checks grant store
// reachability. Zero disables the watchdog.
func WithWatchdogInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.watchdog = d
		}
	}
}

// WithSinkFactory replaces how sinks are built per protocol.
func WithSinkFactory(factory SinkFactory) Option {
	return func(e *Engine) {
		if factory != nil {
			e.sinks = factory
		}
	}
}

// WithCredentialResolver replaces how destination credentials are resolved.
func WithCredentialResolver(resolver creds.Resolver) Option {
	return func(e *Engine) {
		if resolver != nil {
			e.resolver = resolver
		}
	}
}

// WithChecksum replaces the checksum constructor. The default MD5 keeps the
// digest comparable with single-part S3 ETags; other hashes skip ETag
// verification but still guard the pipeline end to end.
func WithChecksum(newHash func() hash.Hash) Option {
	return func(e *Engine) {
		if newHash != nil {
			e.newHash = newHash
		}
	}
}

// WithStateFunc observes every lifecycle transition.
func WithStateFunc(fn StateFunc) Option {
	return func(e *Engine) { e.stateFn = fn }
}

// WithNotifier receives each request's terminal summary exactly once.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithTracker wires a request tracker as both the state observer and the
// terminal notifier.
func WithTracker(t tracker.Tracker) Option {
	return func(e *Engine) {
		if t != nil {
			e.stateFn = t.MarkState
			e.notifier = t
		}
	}
}

// WithProgress streams byte-level progress to the given tracker.
func WithProgress(p ferrytypes.ProgressTracker) Option {
	return func(e *Engine) { e.progress = p }
}

// WithRetryBaseDelay seeds the exponential backoff between attempts.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryBase = d
		}
	}
}
