// TableSnap - Streaming Relational Store Backup Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tablesnap

package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Tables keep insertion order.
type MemoryStore struct {
	engine string

	mu     sync.RWMutex
	tables map[string]*memoryCollection
}

// NewMemoryStore creates an empty store reporting the given engine tag.
func NewMemoryStore(engine string) *MemoryStore {
	return &MemoryStore{engine: engine, tables: make(map[string]*memoryCollection)}
}

// Engine returns the engine tag.
func (m *MemoryStore) Engine() string { return m.engine }

// CreateTable registers an empty table. Existing tables are left as is.
func (m *MemoryStore) CreateTable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[name]; !ok {
		m.tables[name] = &memoryCollection{}
	}
}

// Insert appends records to a table, creating it if needed.
func (m *MemoryStore) Insert(name string, records ...Record) {
	m.CreateTable(name)
	m.mu.RLock()
	c := m.tables[name]
	m.mu.RUnlock()

	c.mu.Lock()
	c.records = append(c.records, records...)
	c.mu.Unlock()
}

// ListTableNames returns the registered tables, sorted.
func (m *MemoryStore) ListTableNames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for n := range m.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Collection returns the table registered as name.
func (m *MemoryStore) Collection(name string) (Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.tables[name]
	if !ok {
		return nil, unknownTable(name)
	}
	return c, nil
}

type memoryCollection struct {
	mu      sync.RWMutex
	records []Record
}

func (c *memoryCollection) FetchPage(ctx context.Context, offset, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if offset >= len(c.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(c.records) {
		end = len(c.records)
	}
	page := make([]Record, end-offset)
	copy(page, c.records[offset:end])
	return page, nil
}

func (c *memoryCollection) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.records)), nil
}
