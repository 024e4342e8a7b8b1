package transfer

import (
	"encoding/hex"
	"hash"
	"regexp"
	"strings"
)

// Accumulator folds source bytes into a single running digest. Callers must
// fold chunks in index order; the sequencer guarantees that, so the final
// sum is identical to hashing the whole object in one pass.
type Accumulator struct {
	h hash.Hash
	n int64
}

// NewAccumulator wraps h. The hash function is the caller's choice; the
// engine defaults to MD5 so sums can be checked against plain S3 ETags.
func NewAccumulator(h hash.Hash) *Accumulator {
	return &Accumulator{h: h}
}

// Fold appends data to the digest.
func (a *Accumulator) Fold(data []byte) {
	a.h.Write(data)
	a.n += int64(len(data))
}

// Bytes returns how many bytes have been folded so far.
func (a *Accumulator) Bytes() int64 {
	return a.n
}

// Sum returns the hex digest of everything folded so far.
func (a *Accumulator) Sum() string {
	return hex.EncodeToString(a.h.Sum(nil))
}

var plainMD5 = regexp.MustCompile(`^[0-9a-f]{32}$`)

// ComparableETag reports whether etag is a plain MD5 digest. Multipart
// uploads and encrypted objects carry composite or opaque ETags that cannot
// be compared against a content digest.
func ComparableETag(etag string) bool {
	return plainMD5.MatchString(NormalizeETag(etag))
}

// NormalizeETag strips the surrounding quotes S3 returns ETags with and
// lowercases the result.
func NormalizeETag(etag string) string {
	return strings.ToLower(strings.Trim(etag, `"`))
}

// MatchesETag reports whether the hex digest sum equals the object's ETag.
// The comparison applies only when both sides are plain MD5 digests: a
// composite or encrypted ETag is opaque, and a non-MD5 accumulator can never
// equal one. Either case returns true, so the digest still guards the
// pipeline without failing transfers it cannot judge.
func MatchesETag(sum, etag string) bool {
	if !ComparableETag(etag) || !plainMD5.MatchString(strings.ToLower(sum)) {
		return true
	}
	return strings.ToLower(sum) == NormalizeETag(etag)
}
