package strategy

import (
	"context"

	"github.com/fileferry/ferry/ferrytypes"
)

// History is the append-only log of transfer outcomes. Appends from
// concurrent transfers must not interfere; records are never updated or
// deleted.
type History interface {
	// Append stores one record.
	Append(ctx context.Context, rec ferrytypes.TransferRecord) error

	// Recent returns up to limit records for the protocol, most recent
	// first.
	Recent(ctx context.Context, protocol ferrytypes.Protocol, limit int) ([]ferrytypes.TransferRecord, error)
}
