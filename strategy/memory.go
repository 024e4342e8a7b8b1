package strategy

import (
	"context"
	"sync"

	"github.com/fileferry/ferry/ferrytypes"
)

// MemoryHistory keeps the outcome log in process memory. It backs tests and
// single-process deployments; durable setups use DynamoHistory.
type MemoryHistory struct {
	mu      sync.RWMutex
	records []ferrytypes.TransferRecord
}

var _ History = (*MemoryHistory)(nil)

// NewMemoryHistory returns an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{}
}

// Append adds the record to the log.
func (h *MemoryHistory) Append(_ context.Context, rec ferrytypes.TransferRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

// Recent returns up to limit records for the protocol, most recent first.
func (h *MemoryHistory) Recent(_ context.Context, protocol ferrytypes.Protocol, limit int) ([]ferrytypes.TransferRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ferrytypes.TransferRecord, 0, limit)
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		if h.records[i].Protocol == protocol {
			out = append(out, h.records[i])
		}
	}
	return out, nil
}

// Len returns the total number of records across all protocols.
func (h *MemoryHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}
