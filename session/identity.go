package session

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
	"github.com/fileferry/ferry/internal/awsapi"
)

// IdentityProvider supplies the underlying time-limited credentials a grant
// captures. The engine never calls it directly; only the Manager does.
type IdentityProvider interface {
	Credentials(ctx context.Context, region string) (ferrytypes.Credentials, error)
}

// DefaultCredentialDuration is the lifetime requested for assumed-role
// credentials. It bounds the transfer, not the grant, so it is much longer
// than the grant TTL.
const DefaultCredentialDuration = 15 * time.Minute

// STSIdentity assumes an IAM role per authentication and returns the
// temporary credentials.
type STSIdentity struct {
	api      awsapi.STSAPI
	roleARN  string
	duration time.Duration
	prefix   string
}

var _ IdentityProvider = (*STSIdentity)(nil)

// IdentityOption configures an STSIdentity.
type IdentityOption func(*STSIdentity)

// WithCredentialDuration overrides the assumed-role session duration.
func WithCredentialDuration(d time.Duration) IdentityOption {
	return func(i *STSIdentity) {
		if d > 0 {
			i.duration = d
		}
	}
}

// WithSessionNamePrefix overrides the role session name prefix.
func WithSessionNamePrefix(prefix string) IdentityOption {
	return func(i *STSIdentity) {
		if prefix != "" {
			i.prefix = prefix
		}
	}
}

// NewSTSIdentity builds an identity provider over the given STS client.
func NewSTSIdentity(api awsapi.STSAPI, roleARN string, opts ...IdentityOption) (*STSIdentity, error) {
	const op = "session.identity"
	if api == nil {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("sts client is required")
	}
	if roleARN == "" {
		return nil, ferryerrors.NewError(op, ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("role arn is required")
	}
	i := &STSIdentity{
		api:      api,
		roleARN:  roleARN,
		duration: DefaultCredentialDuration,
		prefix:   "ferry",
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Credentials assumes the configured role in the given region. An empty
// region keeps the client's default.
func (i *STSIdentity) Credentials(ctx context.Context, region string) (ferrytypes.Credentials, error) {
	var optFns []func(*sts.Options)
	if region != "" {
		optFns = append(optFns, func(o *sts.Options) { o.Region = region })
	}

	out, err := i.api.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(i.roleARN),
		RoleSessionName: aws.String(fmt.Sprintf("%s-%s", i.prefix, uuid.NewString())),
		DurationSeconds: aws.Int32(int32(i.duration / time.Second)),
	}, optFns...)
	if err != nil {
		return ferrytypes.Credentials{}, fmt.Errorf("assume role %s: %w", i.roleARN, err)
	}
	if out.Credentials == nil {
		return ferrytypes.Credentials{}, fmt.Errorf("assume role %s: empty credentials", i.roleARN)
	}

	return ferrytypes.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Expiry:          aws.ToTime(out.Credentials.Expiration),
	}, nil
}

// StaticIdentity returns fixed credentials regardless of region. It serves
// tests and deployments that rely on ambient credentials.
type StaticIdentity struct {
	creds ferrytypes.Credentials
}

var _ IdentityProvider = (*StaticIdentity)(nil)

// NewStaticIdentity wraps the given credentials.
func NewStaticIdentity(creds ferrytypes.Credentials) *StaticIdentity {
	return &StaticIdentity{creds: creds}
}

// Credentials returns the wrapped credentials.
func (s *StaticIdentity) Credentials(context.Context, string) (ferrytypes.Credentials, error) {
	return s.creds, nil
}
