package transfer

// Plan is the execution shape of one copy: how the object is split and how
// many workers run. A zero ChunkSize means the object is copied in a single
// range.
type Plan struct {
	ChunkSize   int64
	Parallelism int
	Compress    bool
}

// Chunk is one contiguous byte range of the source object. Start is
// inclusive, End exclusive, and Index is the chunk's position in the object.
type Chunk struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes the chunk covers.
func (c Chunk) Len() int64 {
	return c.End - c.Start
}

// Workers returns the effective worker count for the plan, at least one and
// never more than the number of chunks.
func (p Plan) Workers(chunks int) int {
	n := p.Parallelism
	if n < 1 {
		n = 1
	}
	if chunks > 0 && n > chunks {
		n = chunks
	}
	return n
}

// Chunks splits total bytes into ranges that cover the object exactly, with
// no gaps and no overlap. The final chunk is truncated to the object size.
// A zero-byte object still yields one empty chunk so the destination file is
// created.
func (p Plan) Chunks(total int64) []Chunk {
	if total <= 0 {
		return []Chunk{{Index: 0, Start: 0, End: 0}}
	}
	if p.ChunkSize <= 0 {
		return []Chunk{{Index: 0, Start: 0, End: total}}
	}

	count := int((total + p.ChunkSize - 1) / p.ChunkSize)
	chunks := make([]Chunk, 0, count)
	for i := 0; i < count; i++ {
		start := int64(i) * p.ChunkSize
		end := start + p.ChunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, Chunk{Index: i, Start: start, End: end})
	}
	return chunks
}
