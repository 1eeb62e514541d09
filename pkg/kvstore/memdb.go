package kvstore

import (
	"bytes"
	"sync"
)

// MemDB is an in-memory DB implementation used for direct (non-blockchain)
// mode and in tests. It is not durable across process restarts.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB returns an empty MemDB.
func NewMemDB() *MemDB {
	return &MemDB{data: map[string][]byte{}}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[string(key)] = v
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemDB) Close() error { return nil }

func (m *MemDB) Iterator(start, end []byte, ascending bool) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := sortedKeys(m.data)
	filtered := make([]string, 0, len(keys))
	for _, k := range keys {
		kb := []byte(k)
		if start != nil && bytes.Compare(kb, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(kb, end) >= 0 {
			continue
		}
		filtered = append(filtered, k)
	}
	if !ascending {
		for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
			filtered[i], filtered[j] = filtered[j], filtered[i]
		}
	}

	values := make([][]byte, len(filtered))
	for i, k := range filtered {
		values[i] = m.data[k]
	}
	return &memIterator{keys: filtered, values: values}, nil
}

type memIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memIterator) Valid() bool { return it.pos < len(it.keys) }

func (it *memIterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return []byte(it.keys[it.pos])
}

func (it *memIterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.values[it.pos]
}

func (it *memIterator) Next() { it.pos++ }

func (it *memIterator) Close() error { return nil }
