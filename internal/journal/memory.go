package journal

import (
	"context"
	"sync"
	"time"
)

// Memory is the process-local journal used when no redis is configured.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*Record
	cursor  uint64
	hasCur  bool
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]*Record)}
}

func (m *Memory) Claim(_ context.Context, rec Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.BetID]; ok {
		return false, nil
	}
	rec.State = StatePending
	if rec.ClaimedAt.IsZero() {
		rec.ClaimedAt = time.Now()
	}
	m.records[rec.BetID] = &rec
	return true, nil
}

func (m *Memory) Resolve(_ context.Context, betID string, out Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[betID]
	if !ok {
		return ErrNotClaimed
	}
	now := time.Now()
	rec.State = out.State
	rec.TxHash = out.TxHash
	rec.Error = out.Error
	rec.ResolvedAt = &now
	return nil
}

func (m *Memory) Get(_ context.Context, betID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[betID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) LoadCursor(context.Context) (uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor, m.hasCur, nil
}

func (m *Memory) SaveCursor(_ context.Context, block uint64) error {
	m.mu.Lock()
	m.cursor, m.hasCur = block, true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }
