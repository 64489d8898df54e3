package statestore

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Key][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key, dst any) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, decode(key, data, dst)
}

func (m *Memory) Put(_ context.Context, key Key, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteOwner(_ context.Context, owner string) error {
	if err := validateOwner(owner); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if key.Owner == owner {
			delete(m.entries, key)
		}
	}
	return nil
}

func (m *Memory) ListOwner(_ context.Context, owner string) ([]Key, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []Key
	for key := range m.entries {
		if key.Owner == owner {
			keys = append(keys, key)
		}
	}
	slices.SortFunc(keys, func(a, b Key) int {
		switch {
		case a.Kind < b.Kind:
			return -1
		case a.Kind > b.Kind:
			return 1
		}
		return 0
	})
	return keys, nil
}
