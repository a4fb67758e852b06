package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store. Tables are deep-copied on the way in and
// out so callers never share rows with the store.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]Table
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string]Table)}
}

func (m *Memory) Load(_ context.Context, name string) (Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("load %s: %w", name, ErrNotFound)
	}
	return cloneTable(t), nil
}

func (m *Memory) Save(_ context.Context, name string, t Table) error {
	m.mu.Lock()
	m.tables[name] = cloneTable(t)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name := range m.tables {
		if hasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, ErrNotFound)
	}
	delete(m.tables, name)
	return nil
}

// Commit swaps all tables in under one lock.
func (m *Memory) Commit(_ context.Context, tables map[string]Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, t := range tables {
		m.tables[name] = cloneTable(t)
	}
	return nil
}

func cloneTable(t Table) Table {
	out := Table{Columns: append([]string(nil), t.Columns...)}
	if t.Rows != nil {
		out.Rows = make([][]string, len(t.Rows))
		for i, r := range t.Rows {
			out.Rows[i] = append([]string(nil), r...)
		}
	}
	return out
}
