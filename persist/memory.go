package persist

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Backend. Contents are lost when the process exits.
type Memory struct {
	mu   sync.RWMutex
	data []byte
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{}
}

// Get implements Backend.
func (m *Memory) Get(context.Context) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.data), nil
}

// Put implements Backend.
func (m *Memory) Put(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = slices.Clone(data)
	return nil
}

// Delete implements Backend.
func (m *Memory) Delete(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = nil
	return nil
}
