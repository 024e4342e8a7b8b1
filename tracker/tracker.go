// Package tracker mirrors transfer request lifecycles into a status table so
// ticketing and operators can follow a transfer without touching the engine.
package tracker

import (
	"context"
	"sync"

	"github.com/fileferry/ferry/ferrytypes"
)

// Tracker receives lifecycle signals for a transfer request. MarkState fires
// on every state transition; Notify fires exactly once when the request
// reaches a terminal state. Both are best effort from the engine's point of
// view: a tracker error is logged, never propagated into the transfer.
type Tracker interface {
	MarkState(ctx context.Context, requestID string, state ferrytypes.TransferState) error
	Notify(ctx context.Context, summary ferrytypes.OutcomeSummary) error
}

// Memory is an in-process tracker for tests and the CLI's dry runs.
type Memory struct {
	mu        sync.Mutex
	states    map[string][]ferrytypes.TransferState
	summaries []ferrytypes.OutcomeSummary
}

// NewMemory returns an empty in-process tracker.
func NewMemory() *Memory {
	return &Memory{states: make(map[string][]ferrytypes.TransferState)}
}

var _ Tracker = (*Memory)(nil)

// MarkState appends the state to the request's transition log.
func (m *Memory) MarkState(_ context.Context, requestID string, state ferrytypes.TransferState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[requestID] = append(m.states[requestID], state)
	return nil
}

// Notify records the terminal summary.
func (m *Memory) Notify(_ context.Context, summary ferrytypes.OutcomeSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries = append(m.summaries, summary)
	return nil
}

// States returns the transition log for one request.
func (m *Memory) States(requestID string) []ferrytypes.TransferState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ferrytypes.TransferState(nil), m.states[requestID]...)
}

// Summaries returns every terminal summary recorded so far.
func (m *Memory) Summaries() []ferrytypes.OutcomeSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ferrytypes.OutcomeSummary(nil), m.summaries...)
}
