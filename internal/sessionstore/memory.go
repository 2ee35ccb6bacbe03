package sessionstore

import (
	"context"
	"sync"
)

// Memory keeps the record in process. It does not survive a restart and is
// meant for tests and local runs.
type Memory struct {
	mu     sync.RWMutex
	rec    Record
	saves  int
	closed bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load(_ context.Context) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Record{}, ErrClosed
	}
	return m.rec, nil
}

func (m *Memory) Save(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rec = r
	m.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (m *Memory) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
