package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferPool_GetPut(t *testing.T) {
	bp := New(4096)
	require.Equal(t, 4096, bp.Size())

	buf := bp.Get()
	require.NotNil(t, buf)
	assert.Equal(t, 4096, cap(buf))
	assert.Equal(t, 0, len(buf))

	buf = append(buf, []byte("chunk data")...)
	assert.Equal(t, 10, len(buf))

	bp.Put(buf)
}

func TestBufferPool_Reuse(t *testing.T) {
	bp := New(1024)

	buf1 := bp.Get()
	buf1 = append(buf1, []byte("first use")...)
	bp.Put(buf1)

	buf2 := bp.Get()
	assert.Equal(t, 1024, cap(buf2))
	assert.Equal(t, 0, len(buf2))
	bp.Put(buf2)
}

func TestBufferPool_DropsGrownBuffers(t *testing.T) {
	bp := New(64)

	buf := bp.Get()
	buf = append(buf, make([]byte, 128)...)
	assert.Greater(t, cap(buf), 64)

	// Must not panic, and the grown buffer must not poison the pool.
	bp.Put(buf)

	next := bp.Get()
	assert.Equal(t, 64, cap(next))
}
