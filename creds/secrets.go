package creds

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/internal/awsapi"
)

// DefaultCacheTTL bounds how long a resolved secret is served from cache.
// Rotated destination passwords take effect within this window.
const DefaultCacheTTL = 5 * time.Minute

// secretPayload is the JSON document stored under a destination's secret
// reference.
type secretPayload struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	PrivateKey string `json:"private_key"`
}

type cachedCreds struct {
	creds   ferrytypes.SinkCredentials
	expires time.Time
}

// SecretsResolver resolves destination credentials from AWS Secrets Manager.
// Inline credentials win: the secret is fetched only when the destination
// carries neither a password nor a private key.
type SecretsResolver struct {
	api awsapi.SecretsManagerAPI
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cachedCreds
}

// SecretsOption adjusts a SecretsResolver.
type SecretsOption func(*SecretsResolver)

// WithCacheTTL replaces the secret cache lifetime. Zero disables caching.
func WithCacheTTL(ttl time.Duration) SecretsOption {
	return func(r *SecretsResolver) {
		if ttl >= 0 {
			r.ttl = ttl
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) SecretsOption {
	return func(r *SecretsResolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewSecretsResolver returns a resolver backed by AWS Secrets Manager.
func NewSecretsResolver(api awsapi.SecretsManagerAPI, opts ...SecretsOption) (*SecretsResolver, error) {
	if api == nil {
		return nil, ferryerrors.NewError("creds.new", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("secrets manager client is required")
	}
	r := &SecretsResolver{
		api:   api,
		ttl:   DefaultCacheTTL,
		now:   time.Now,
		cache: make(map[string]cachedCreds),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

var _ Resolver = (*SecretsResolver)(nil)

// Resolve returns the destination's credentials, fetching and caching the
// referenced secret when the destination carries no usable inline auth.
func (r *SecretsResolver) Resolve(ctx context.Context, dest ferrytypes.Destination) (ferrytypes.SinkCredentials, error) {
	inline := inlineCredentials(dest)
	if dest.SecretRef == "" || inline.Password != "" || len(inline.PrivateKey) > 0 {
		return inline, nil
	}

	creds, ok := r.cached(dest.SecretRef)
	if !ok {
		payload, err := r.fetch(ctx, dest.SecretRef)
		if err != nil {
			return ferrytypes.SinkCredentials{}, err
		}
		creds = ferrytypes.SinkCredentials{
			Username: payload.Username,
			Password: payload.Password,
		}
		if payload.PrivateKey != "" {
			creds.PrivateKey = []byte(payload.PrivateKey)
		}
		r.store(dest.SecretRef, creds)
	}

	if creds.Username == "" {
		creds.Username = inline.Username
	}
	return creds, nil
}

// fetch loads and decodes one secret document.
func (r *SecretsResolver) fetch(ctx context.Context, secretRef string) (secretPayload, error) {
	const op = "creds.fetch"

	out, err := r.api.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretRef),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return secretPayload{}, ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, err).
				WithMessage("destination secret " + secretRef + " does not exist")
		}
		return secretPayload{}, ferryerrors.NewError(op, ferryerrors.KindTransientTransport, err).
			WithMessage("fetching destination secret " + secretRef)
	}

	var raw []byte
	switch {
	case out.SecretString != nil:
		raw = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		raw = out.SecretBinary
	default:
		return secretPayload{}, ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, ferryerrors.ErrInvalidInput).
			WithMessage("destination secret " + secretRef + " is empty")
	}

	var payload secretPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return secretPayload{}, ferryerrors.NewError(op, ferryerrors.KindInvalidRequest, err).
			WithMessage("destination secret " + secretRef + " is not a credentials document")
	}
	return payload, nil
}

func (r *SecretsResolver) cached(secretRef string) (ferrytypes.SinkCredentials, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache[secretRef]
	if !ok || !r.now().Before(entry.expires) {
		return ferrytypes.SinkCredentials{}, false
	}
	return entry.creds, true
}

func (r *SecretsResolver) store(secretRef string, creds ferrytypes.SinkCredentials) {
	if r.ttl == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[secretRef] = cachedCreds{creds: creds, expires: r.now().Add(r.ttl)}
}
