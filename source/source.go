// Package source provides the read-only view of blob storage that transfers
// copy from.
package source

import (
	"context"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fileferry/ferry/ferrytypes"
)

// ObjectInfo is the metadata a single stat call returns.
type ObjectInfo struct {
	// Size is the object length in bytes.
	Size int64

	// ETag is the store's entity tag, quoted as returned.
	ETag string

	// ContentType is the stored MIME type, possibly empty.
	ContentType string

	// LastModified is the object's last modification time.
	LastModified time.Time
}

// Source reads objects from blob storage. Implementations never write or
// delete; the engine is strictly a consumer of the source.
type Source interface {
	// Stat returns the object's metadata without reading its content.
	Stat(ctx context.Context, ref ferrytypes.ObjectRef) (*ObjectInfo, error)

	// ReadRange streams the byte range [start, end) of the object.
	ReadRange(ctx context.Context, ref ferrytypes.ObjectRef, start, end int64) (io.ReadCloser, error)
}

// sniffLen is how many leading bytes content detection reads.
const sniffLen = 512

// Sniff detects the object's MIME type from its leading bytes.
// It backs planning decisions when the store has no content type on record.
func Sniff(ctx context.Context, src Source, ref ferrytypes.ObjectRef, size int64) (string, error) {
	if size <= 0 {
		return "", nil
	}
	n := int64(sniffLen)
	if size < n {
		n = size
	}

	rc, err := src.ReadRange(ctx, ref, 0, n)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	head, err := io.ReadAll(io.LimitReader(rc, n))
	if err != nil {
		return "", err
	}
	return mimetype.Detect(head).String(), nil
}
