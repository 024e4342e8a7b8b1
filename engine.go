package ferry

import (
	"context"
	"crypto/md5"
	"hash"
	"log/slog"
	"time"

	"github.com/fileferry/ferry/creds"
	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/session"
	"github.com/fileferry/ferry/sink"
	"github.com/fileferry/ferry/source"
)

const (
	// DefaultJobTimeout bounds one transfer end to end, independent of the
	// short grant validity window.
	DefaultJobTimeout = time.Hour

	// DefaultWatchdogInterval is how often the engine re-checks grant store
	// reachability while streaming.
	DefaultWatchdogInterval = 30 * time.Second

	// maxRetries is how many times a transient failure is retried after the
	// initial attempt.
	maxRetries = 3

	// defaultRetryBaseDelay seeds the exponential backoff between attempts.
	defaultRetryBaseDelay = 500 * time.Millisecond

	// maxRetryDelay caps the backoff between attempts.
	maxRetryDelay = 30 * time.Second
)

// SessionManager issues and polices the grants that authorize transfers.
type SessionManager interface {
	Authenticate(ctx context.Context, requesterID, requestID, region string) (*session.Grant, error)
	IsValid(ctx context.Context, grantID string) bool
	CredentialsFor(ctx context.Context, grantID string) (ferrytypes.Credentials, error)
	Revoke(ctx context.Context, grantID string) error
	Ping(ctx context.Context) error
}

// Predictor estimates transfers from history and records their outcomes.
type Predictor interface {
	Predict(ctx context.Context, protocol ferrytypes.Protocol, sizeBytes int64) (ferrytypes.Prediction, error)
	Record(ctx context.Context, rec ferrytypes.TransferRecord) error
}

// SourceFactory builds the read-only source view for one transfer using the
// credentials captured from its grant.
type SourceFactory func(ctx context.Context, credentials ferrytypes.Credentials) (source.Source, error)

// SinkFactory returns a fresh, unconnected sink for the protocol.
type SinkFactory func(protocol ferrytypes.Protocol) (sink.Sink, error)

// StateFunc observes lifecycle transitions. Errors are logged, never fatal.
type StateFunc func(ctx context.Context, requestID string, state ferrytypes.TransferState) error

// Notifier receives the terminal summary of a request, exactly once.
type Notifier interface {
	Notify(ctx context.Context, summary ferrytypes.OutcomeSummary) error
}

// Engine executes transfer requests. It is safe for concurrent use; each
// Execute call owns its request's full lifecycle.
type Engine struct {
	sources  SourceFactory
	session  SessionManager
	learner  Predictor
	sinks    SinkFactory
	resolver creds.Resolver

	stateFn  StateFunc
	notifier Notifier
	progress ferrytypes.ProgressTracker

	logger     *slog.Logger
	now        func() time.Time
	newHash    func() hash.Hash
	region     string
	jobTimeout time.Duration
	watchdog   time.Duration
	retryBase  time.Duration
}

// New wires an engine over its three mandatory collaborators. Sinks default
// to the protocol implementations in the sink package, destination
// credentials to the inline resolver, and checksums to MD5 so the source
// ETag stays comparable.
func New(sources SourceFactory, sessions SessionManager, learner Predictor, opts ...Option) (*Engine, error) {
	const op = "ferry.new"
	if sources == nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("source factory is required")
	}
	if sessions == nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("session manager is required")
	}
	if learner == nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("predictor is required")
	}

	e := &Engine{
		sources:    sources,
		session:    sessions,
		learner:    learner,
		sinks:      sink.For,
		resolver:   creds.NewStatic(),
		logger:     slog.Default(),
		now:        time.Now,
		newHash:    md5.New,
		jobTimeout: DefaultJobTimeout,
		watchdog:   DefaultWatchdogInterval,
		retryBase:  defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}
