package persistence

import (
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mockfold/mockfold/core/record"
)

// Memory is the in-memory driver. State is kept as a JSON snapshot, which
// isolates the driver from later mutations of the records it was handed.
type Memory struct {
	mutex     sync.RWMutex
	current   []byte
	snapshots map[string][]byte
}

// NewMemory creates a new in-memory driver
func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]byte)}
}

// Save persists the full collection set
func (m *Memory) Save(data map[string][]record.Record) error {
	serialized, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cannot serialize collection set: %w", err)
	}
	m.mutex.Lock()
	m.current = serialized
	m.mutex.Unlock()
	return nil
}

// Load returns the last persisted collection set
func (m *Memory) Load() (map[string][]record.Record, error) {
	m.mutex.RLock()
	serialized := m.current
	m.mutex.RUnlock()
	if serialized == nil {
		return map[string][]record.Record{}, nil
	}
	return deserialize(serialized)
}

// Backup stores a snapshot of the current state. An empty id generates a fresh one.
func (m *Memory) Backup(id string) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	m.mutex.Lock()
	m.snapshots[id] = m.current
	m.mutex.Unlock()
	return id, nil
}

// Restore returns the collection set of a snapshot
func (m *Memory) Restore(id string) (map[string][]record.Record, error) {
	m.mutex.RLock()
	serialized, ok := m.snapshots[id]
	m.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown snapshot %s", id)
	}
	if serialized == nil {
		return map[string][]record.Record{}, nil
	}
	return deserialize(serialized)
}

func deserialize(serialized []byte) (map[string][]record.Record, error) {
	var data map[string][]record.Record
	if err := json.Unmarshal(serialized, &data); err != nil {
		return nil, fmt.Errorf("cannot deserialize collection set: %w", err)
	}
	return data, nil
}
