// Package sink delivers object bytes to remote FTP, FTPS, and SFTP
// endpoints behind one protocol-agnostic interface.
package sink

import (
	"context"
	"io"

	ferryerrors "github.com/fileferry/ferry/errors"
	"github.com/fileferry/ferry/ferrytypes"
)

// Sink writes a transfer's bytes to one destination endpoint. A Sink is
// single destination: Connect binds it, WriteAt may be called from many
// workers concurrently, Close releases every connection.
type Sink interface {
	// Connect binds the sink to the destination and verifies it accepts the
	// credentials.
	Connect(ctx context.Context, dest ferrytypes.Destination, creds ferrytypes.SinkCredentials) error

	// Prepare creates the remote parent directories of path and clears any
	// previous object at path, since offset writes never truncate.
	Prepare(ctx context.Context, path string) error

	// WriteAt writes the reader's bytes starting at the given byte offset of
	// the remote file and returns how many bytes it wrote.
	WriteAt(ctx context.Context, path string, offset int64, r io.Reader) (int64, error)

	// Close releases all connections. A closed sink cannot be reused.
	Close() error
}

// For returns the sink implementation for the protocol. The protocol set is
// closed; an unknown value is an input error, never a silent default.
func For(protocol ferrytypes.Protocol) (Sink, error) {
	switch protocol {
	case ferrytypes.ProtocolSFTP:
		return NewSFTP(), nil
	case ferrytypes.ProtocolFTP:
		return NewFTP(), nil
	case ferrytypes.ProtocolFTPS:
		return NewFTPS(), nil
	default:
		return nil, ferryerrors.NewError("sink.for", ferryerrors.KindInvalidInput, ferryerrors.ErrInvalidInput).
			WithMessage("unsupported protocol " + string(protocol))
	}
}

// countingReader counts bytes as the transport consumes them, since the
// protocol libraries report only success or failure.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
