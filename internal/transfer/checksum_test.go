package transfer

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAccumulatorMatchesSinglePass(t *testing.T) {
	payload := []byte("the accumulated digest must equal one pass over the whole object")

	acc := NewAccumulator(md5.New())
	for _, cut := range [][2]int{{0, 7}, {7, 8}, {8, 30}, {30, len(payload)}} {
		acc.Fold(payload[cut[0]:cut[1]])
	}

	whole := md5.Sum(payload)
	assert.Equal(t, hex.EncodeToString(whole[:]), acc.Sum())
	assert.Equal(t, int64(len(payload)), acc.Bytes())
}

func TestComparableETag(t *testing.T) {
	tests := []struct {
		name string
		etag string
		want bool
	}{
		{name: "plain md5", etag: "d41d8cd98f00b204e9800998ecf8427e", want: true},
		{name: "quoted md5", etag: `"d41d8cd98f00b204e9800998ecf8427e"`, want: true},
		{name: "uppercase md5", etag: "D41D8CD98F00B204E9800998ECF8427E", want: true},
		{name: "multipart composite", etag: `"d41d8cd98f00b204e9800998ecf8427e-7"`, want: false},
		{name: "too short", etag: "abc123", want: false},
		{name: "empty", etag: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComparableETag(tt.etag))
		})
	}
}

func TestMatchesETag(t *testing.T) {
	sum := "d41d8cd98f00b204e9800998ecf8427e"

	assert.True(t, MatchesETag(sum, `"d41d8cd98f00b204e9800998ecf8427e"`))
	assert.False(t, MatchesETag(sum, `"aaaa8cd98f00b204e9800998ecf8427e"`))

	// Composite ETags cannot be compared, so they never fail a transfer.
	assert.True(t, MatchesETag(sum, `"d41d8cd98f00b204e9800998ecf8427e-7"`))

	// Nor can a digest from a non-MD5 accumulator, whatever the ETag says.
	sha := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	assert.True(t, MatchesETag(sha, `"d41d8cd98f00b204e9800998ecf8427e"`))
}
