// Package snapshot holds the latest published value of every projection.
package snapshot

import (
	"slices"
)

// Store maps a projection id to its last published value.
// Set replaces the value wholesale; there is no history.
type Store interface {
	Get(id string) (any, bool)
	Set(id string, data any)
	Has(id string) bool
	Len() int
	IDs() []string
}

// Memory is the in-process Store. Not safe for concurrent use.
type Memory struct {
	data map[string]any
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]any)}
}

func (m *Memory) Get(id string) (any, bool) {
	v, ok := m.data[id]
	return v, ok
}

func (m *Memory) Set(id string, data any) {
	m.data[id] = data
}

func (m *Memory) Has(id string) bool {
	_, ok := m.data[id]
	return ok
}

func (m *Memory) Len() int {
	return len(m.data)
}

// IDs returns the stored projection ids in sorted order.
func (m *Memory) IDs() []string {
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

var _ Store = (*Memory)(nil)
