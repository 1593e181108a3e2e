package db

import (
	"context"
	"sync"
)

// Memory is the process-scoped tier. Its contents die with the process,
// the way tab storage dies with the tab.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
	used    int
	quota   int
}

func NewMemory(quota int) *Memory {
	if quota <= 0 {
		quota = DefaultQuota
	}
	return &Memory{entries: make(map[string]string), quota: quota}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := m.used
	if old, ok := m.entries[key]; ok {
		used -= entrySize(key, old)
	}
	used += entrySize(key, value)
	if used > m.quota {
		return ErrQuotaExceeded
	}
	m.entries[key] = value
	m.used = used
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.entries[key]; ok {
		m.used -= entrySize(key, old)
		delete(m.entries, key)
	}
	return nil
}

func (m *Memory) Close() {}
