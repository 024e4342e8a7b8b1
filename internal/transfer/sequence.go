package transfer

import "sync"

// chunkData is the payload a worker hands to the sequencer once its chunk is
// copied: the raw source bytes and, when compression is on, the compressed
// form destined for the append writer.
type chunkData struct {
	raw  []byte
	comp []byte
}

// sequencer delivers chunk payloads to a single consumer in index order, no
// matter which worker finishes first. Producers that run ahead park their
// payload in a bounded window and block once it is full, which caps buffered
// memory at roughly window chunks.
type sequencer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	next     int
	window   int
	pending  map[int]chunkData
	draining bool
	err      error

	consume func(index int, data chunkData) error
	release func(data chunkData)
}

func newSequencer(window int, consume func(int, chunkData) error, release func(chunkData)) *sequencer {
	if window < 1 {
		window = 1
	}
	s := &sequencer{
		window:  window,
		pending: make(map[int]chunkData),
		consume: consume,
		release: release,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// put hands the payload for index to the sequencer and blocks while the
// reorder window is full. The chunk at the head of the sequence is always
// admitted so the pipeline cannot stall. On a nil return the sequencer owns
// the payload and releases it after consumption.
func (s *sequencer) put(index int, data chunkData) error {
	s.mu.Lock()
	for s.err == nil && index != s.next && len(s.pending) >= s.window {
		s.cond.Wait()
	}
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return err
	}
	s.pending[index] = data

	// Whoever parks a payload while nobody is draining becomes the drainer
	// and consumes every contiguous chunk available from next onward. The
	// handoff happens under the lock, so a payload parked after the drainer's
	// last check is picked up by its own producer.
	if !s.draining {
		s.draining = true
		for s.err == nil {
			d, ok := s.pending[s.next]
			if !ok {
				break
			}
			idx := s.next
			delete(s.pending, idx)
			s.mu.Unlock()
			err := s.consume(idx, d)
			if s.release != nil {
				s.release(d)
			}
			s.mu.Lock()
			if err != nil {
				s.err = err
				break
			}
			s.next++
			s.cond.Broadcast()
		}
		s.draining = false
		s.cond.Broadcast()
	}

	err := s.err
	s.mu.Unlock()
	return err
}

// fail poisons the sequencer so parked and blocked producers return err.
func (s *sequencer) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

// consumed reports how many chunks have been handed to the consumer.
func (s *sequencer) consumed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
