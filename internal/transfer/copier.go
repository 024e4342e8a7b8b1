package transfer

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"io"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"

	"github.com/fileferry/ferry/internal/pool"
)

// RangeReader supplies one contiguous byte range of the source object.
// Start is inclusive, end exclusive.
type RangeReader interface {
	ReadRange(ctx context.Context, start, end int64) (io.ReadCloser, error)
}

// ChunkWriter lands bytes at a byte offset of the destination file.
type ChunkWriter interface {
	WriteAt(ctx context.Context, offset int64, r io.Reader) (int64, error)
}

const (
	// progressInterval is how many source bytes pass between progress
	// callbacks.
	progressInterval = 10 * 1024 * 1024

	// compressionLevel is fixed so reruns over the same bytes produce
	// identical output.
	compressionLevel = 6
)

// Config wires one copy run.
type Config struct {
	Plan    Plan
	Total   int64
	Source  RangeReader
	Dest    ChunkWriter
	NewHash func() hash.Hash

	// OnProgress, when set, is called roughly every progressInterval source
	// bytes and once more at completion.
	OnProgress func(transferred, total int64)
}

// Result reports a completed copy. BytesRead counts source bytes and
// BytesWritten destination bytes; they differ when compression is on.
type Result struct {
	BytesRead    int64
	BytesWritten int64
	Checksum     string
	Chunks       int
}

// Copier executes one chunked copy. It is single use.
type Copier struct {
	cfg     Config
	buffers *pool.BufferPool
}

// New validates the configuration and sizes the chunk buffer pool.
func New(cfg Config) (*Copier, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("transfer: source is required")
	}
	if cfg.Dest == nil {
		return nil, fmt.Errorf("transfer: destination is required")
	}
	if cfg.NewHash == nil {
		return nil, fmt.Errorf("transfer: hash constructor is required")
	}
	if cfg.Total < 0 {
		return nil, fmt.Errorf("transfer: negative object size %d", cfg.Total)
	}

	bufSize := cfg.Plan.ChunkSize
	if bufSize <= 0 {
		bufSize = cfg.Total
	}
	if bufSize <= 0 {
		bufSize = 1
	}
	return &Copier{cfg: cfg, buffers: pool.New(int(bufSize))}, nil
}

// Run copies the object and returns the accumulated digest. Workers read
// ranges concurrently; the destination layout and the digest are identical
// for any parallelism because chunk payloads are merged in index order.
func (c *Copier) Run(ctx context.Context) (*Result, error) {
	chunks := c.cfg.Plan.Chunks(c.cfg.Total)
	workers := c.cfg.Plan.Workers(len(chunks))

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	acc := NewAccumulator(c.cfg.NewHash())
	prog := newProgress(c.cfg.Total, c.cfg.OnProgress)

	var (
		written      atomic.Int64
		appendOffset int64
	)

	// The sequencer is the only goroutine path that touches the accumulator
	// and the append offset, so both stay unsynchronized.
	consume := func(index int, data chunkData) error {
		acc.Fold(data.raw)
		if c.cfg.Plan.Compress && len(data.comp) > 0 {
			n, err := c.cfg.Dest.WriteAt(ctx, appendOffset, bytes.NewReader(data.comp))
			if err != nil {
				return fmt.Errorf("append chunk %d: %w", index, err)
			}
			appendOffset += n
			written.Add(n)
		}
		return nil
	}
	release := func(data chunkData) {
		if data.raw != nil {
			c.buffers.Put(data.raw)
		}
	}
	seq := newSequencer(workers, consume, release)

	watch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			seq.fail(context.Cause(ctx))
		case <-watch:
		}
	}()
	defer close(watch)

	jobs := make(chan Chunk)
	go func() {
		defer close(jobs)
		for _, chunk := range chunks {
			select {
			case jobs <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel(err)
		}
		mu.Unlock()
		seq.fail(err)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// A panicking source or destination must surface as this run's
			// error, not unwind the goroutine and kill the process.
			defer func() {
				if r := recover(); r != nil {
					fail(fmt.Errorf("transfer: chunk worker panic: %v", r))
				}
			}()
			for chunk := range jobs {
				if ctx.Err() != nil {
					return
				}
				if err := c.copyChunk(ctx, chunk, seq, &written); err != nil {
					fail(err)
					return
				}
				prog.mark(chunk.Len())
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err == nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	if err != nil {
		return nil, err
	}
	if got := seq.consumed(); got != len(chunks) {
		return nil, fmt.Errorf("transfer: merged %d of %d chunks", got, len(chunks))
	}
	prog.finish()

	return &Result{
		BytesRead:    acc.Bytes(),
		BytesWritten: written.Load(),
		Checksum:     acc.Sum(),
		Chunks:       len(chunks),
	}, nil
}

// copyChunk reads one range, lands it at the destination, and hands the
// payload to the sequencer. For offset writes the worker writes directly;
// compressed payloads are appended by the sequencer so members stay in
// chunk order.
func (c *Copier) copyChunk(ctx context.Context, chunk Chunk, seq *sequencer, written *atomic.Int64) error {
	if chunk.Len() == 0 {
		// Zero-byte object: create the destination file and account the
		// empty chunk.
		if _, err := c.cfg.Dest.WriteAt(ctx, 0, bytes.NewReader(nil)); err != nil {
			return fmt.Errorf("write chunk %d: %w", chunk.Index, err)
		}
		return seq.put(chunk.Index, chunkData{})
	}

	buf := c.buffers.Get()
	buf = buf[:chunk.Len()]

	rc, err := c.cfg.Source.ReadRange(ctx, chunk.Start, chunk.End)
	if err != nil {
		c.buffers.Put(buf)
		return fmt.Errorf("read chunk %d: %w", chunk.Index, err)
	}
	_, err = io.ReadFull(rc, buf)
	if closeErr := rc.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		c.buffers.Put(buf)
		return fmt.Errorf("read chunk %d: %w", chunk.Index, err)
	}

	data := chunkData{raw: buf}
	if c.cfg.Plan.Compress {
		comp, err := compressChunk(buf)
		if err != nil {
			c.buffers.Put(buf)
			return fmt.Errorf("compress chunk %d: %w", chunk.Index, err)
		}
		data.comp = comp
	} else {
		n, err := c.cfg.Dest.WriteAt(ctx, chunk.Start, bytes.NewReader(buf))
		if err != nil {
			c.buffers.Put(buf)
			return fmt.Errorf("write chunk %d: %w", chunk.Index, err)
		}
		if n != chunk.Len() {
			c.buffers.Put(buf)
			return fmt.Errorf("write chunk %d: short write of %d bytes, want %d", chunk.Index, n, chunk.Len())
		}
		written.Add(n)
	}
	return seq.put(chunk.Index, data)
}

// compressChunk gzips one chunk as a standalone member. Concatenated members
// decompress as a single stream, so appending them in index order yields a
// valid file.
func compressChunk(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(raw)/2 + 64)
	zw, err := gzip.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// progress throttles transfer callbacks to the reporting interval.
type progress struct {
	mu          sync.Mutex
	total       int64
	transferred int64
	lastReport  int64
	onUpdate    func(transferred, total int64)
}

func newProgress(total int64, onUpdate func(int64, int64)) *progress {
	return &progress{total: total, onUpdate: onUpdate}
}

func (p *progress) mark(n int64) {
	if p.onUpdate == nil {
		return
	}
	p.mu.Lock()
	p.transferred += n
	fire := p.transferred-p.lastReport >= progressInterval
	if fire {
		p.lastReport = p.transferred
	}
	transferred := p.transferred
	p.mu.Unlock()
	if fire {
		p.onUpdate(transferred, p.total)
	}
}

func (p *progress) finish() {
	if p.onUpdate == nil {
		return
	}
	p.mu.Lock()
	fire := p.lastReport != p.transferred || p.transferred == 0
	p.lastReport = p.transferred
	transferred := p.transferred
	p.mu.Unlock()
	if fire {
		p.onUpdate(transferred, p.total)
	}
}
