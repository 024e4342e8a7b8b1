// Package strategy selects transfer plans from object size and predicts
// outcomes from historical transfer records.
package strategy

import (
	"strings"
	"time"

	"github.com/fileferry/ferry/ferrytypes"
)

// Chunk sizes per tier.
const (
	mediumChunkSize = 10 * 1024 * 1024
	largeChunkSize  = 20 * 1024 * 1024
	xlargeChunkSize = 50 * 1024 * 1024

	// MinChunkSize is the floor a degraded plan never drops below.
	MinChunkSize = 5 * 1024 * 1024
)

// planThroughput is the conservative rate, in bytes per second, used to
// project transfer durations. Deliberately pessimistic so the projection
// overshoots rather than undershoots.
const planThroughput = 10 * 1024 * 1024

// Select returns the strategy tier for an object of the given size. The
// mapping is deterministic and independent of history; every size lands in
// exactly one tier.
func Select(sizeBytes int64) ferrytypes.TransferStrategy {
	var s ferrytypes.TransferStrategy
	switch ferrytypes.BucketFor(sizeBytes) {
	case ferrytypes.BucketSmall:
		s = ferrytypes.TransferStrategy{
			ChunkSize:   0,
			Parallelism: 1,
			Compress:    false,
			Risk:        ferrytypes.RiskLow,
		}
	case ferrytypes.BucketMedium:
		s = ferrytypes.TransferStrategy{
			ChunkSize:   mediumChunkSize,
			Parallelism: 4,
			Compress:    true,
			Risk:        ferrytypes.RiskLow,
		}
	case ferrytypes.BucketLarge:
		s = ferrytypes.TransferStrategy{
			ChunkSize:   largeChunkSize,
			Parallelism: 8,
			Compress:    true,
			Risk:        ferrytypes.RiskMedium,
		}
	default:
		s = ferrytypes.TransferStrategy{
			ChunkSize:   xlargeChunkSize,
			Parallelism: 16,
			Compress:    true,
			Risk:        ferrytypes.RiskHigh,
		}
	}
	s.EstimatedDuration = projectDuration(sizeBytes)
	return s
}

// projectDuration estimates the wall-clock time to move sizeBytes at the
// conservative planning rate, padded 15% for protocol overhead. Integer
// microsecond math keeps the projection exact for round sizes.
func projectDuration(sizeBytes int64) time.Duration {
	if sizeBytes <= 0 {
		return 0
	}
	micros := sizeBytes * 1_150_000 / planThroughput
	return time.Duration(micros) * time.Microsecond
}

// Degrade derives the safer plan used after a transient failure: half the
// parallelism and half the chunk size, floored so the plan stays workable.
// Single-shot plans keep their shape.
func Degrade(s ferrytypes.TransferStrategy) ferrytypes.TransferStrategy {
	out := s
	if out.Parallelism > 1 {
		out.Parallelism /= 2
	}
	if out.ChunkSize > 0 {
		out.ChunkSize /= 2
		if out.ChunkSize < MinChunkSize {
			out.ChunkSize = MinChunkSize
		}
	}
	return out
}

// incompressible lists content types that are already entropy-coded.
// Compressing them again burns CPU for nothing, so planning turns
// compression off for these.
var incompressible = map[string]struct{}{
	"application/gzip":             {},
	"application/x-gzip":           {},
	"application/zip":              {},
	"application/x-7z-compressed":  {},
	"application/x-rar-compressed": {},
	"application/x-bzip2":          {},
	"application/x-xz":             {},
	"application/zstd":             {},
	"image/jpeg":                   {},
	"image/png":                    {},
	"image/gif":                    {},
	"image/webp":                   {},
	"video/mp4":                    {},
	"video/webm":                   {},
	"audio/mpeg":                   {},
	"audio/ogg":                    {},
}

// Compressible reports whether content of the given MIME type is worth
// compressing. Unknown and empty types read as compressible.
func Compressible(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	_, found := incompressible[ct]
	return !found
}
