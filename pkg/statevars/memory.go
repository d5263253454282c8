package statevars

import (
	"context"
	"sync"

	"github.com/thomasrohde/oscript/pkg/evaluator"
)

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	vars map[string]map[string]evaluator.Value
}

func NewMemory() *Memory {
	return &Memory{vars: make(map[string]map[string]evaluator.Value)}
}

func (m *Memory) Load(_ context.Context, address, key string) (evaluator.Value, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[address][key]
	return v, ok, nil
}

func (m *Memory) Commit(_ context.Context, address string, changes []Change) error {
	for _, c := range changes {
		if c.Value == nil {
			continue
		}
		if err := checkStored(c.Key, c.Value); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	vars := m.vars[address]
	if vars == nil {
		vars = make(map[string]evaluator.Value)
		m.vars[address] = vars
	}
	for _, c := range changes {
		if c.Value == nil {
			delete(vars, c.Key)
			continue
		}
		vars[c.Key] = c.Value
	}
	if len(vars) == 0 {
		delete(m.vars, address)
	}
	return nil
}

func (m *Memory) StorageSize(_ context.Context, address string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var size int64
	for k, v := range m.vars[address] {
		size += entrySize(k, v)
	}
	return size, nil
}

// Snapshot copies address's committed vars.
func (m *Memory) Snapshot(address string) map[string]evaluator.Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]evaluator.Value, len(m.vars[address]))
	for k, v := range m.vars[address] {
		out[k] = v
	}
	return out
}
