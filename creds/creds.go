// Package creds resolves destination account credentials. Destinations may
// carry credentials inline or reference a secret held in AWS Secrets Manager.
package creds

import (
	"context"

	"github.com/fileferry/ferry/ferrytypes"
)

// Resolver produces the destination account credentials for one transfer.
type Resolver interface {
	Resolve(ctx context.Context, dest ferrytypes.Destination) (ferrytypes.SinkCredentials, error)
}

// Static resolves credentials from the destination's inline fields only.
type Static struct{}

// NewStatic returns a resolver for destinations that carry credentials inline.
func NewStatic() *Static { return &Static{} }

var _ Resolver = (*Static)(nil)

// Resolve returns the destination's inline credentials.
func (*Static) Resolve(_ context.Context, dest ferrytypes.Destination) (ferrytypes.SinkCredentials, error) {
	return inlineCredentials(dest), nil
}

func inlineCredentials(dest ferrytypes.Destination) ferrytypes.SinkCredentials {
	return ferrytypes.SinkCredentials{
		Username:   dest.Username,
		Password:   dest.Password,
		PrivateKey: dest.PrivateKey,
	}
}
