package kvstore

import (
	"strings"
	"sync"
)

// MemoryStore is an in-process KVStore used for tests and ephemeral runs.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string][]byte
	codec Codec
}

func NewMemoryStore(codec Codec) *MemoryStore {
	if codec == nil {
		codec = JSON
	}
	return &MemoryStore{
		data:  make(map[string][]byte),
		codec: codec,
	}
}

func (m *MemoryStore) GetName() string { return "memory" }

func (m *MemoryStore) Set(k string, v string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = []byte(v)
	return nil
}

func (m *MemoryStore) Get(k string) (string, error) {
	if k == "" {
		return "", ErrKeyEmpty
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[k]
	if !ok {
		return "", ErrKeyNotFound
	}
	return string(v), nil
}

func (m *MemoryStore) SetAny(k string, v any) error {
	if err := checkKeyAndValue(k, v); err != nil {
		return err
	}
	data, err := m.codec.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[k] = data
	return nil
}

func (m *MemoryStore) GetAny(k string, v any) (bool, error) {
	if err := checkKeyAndValue(k, v); err != nil {
		return false, err
	}
	m.mu.RLock()
	data, ok := m.data[k]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, m.codec.Unmarshal(data, v)
}

func (m *MemoryStore) List(prefix string) ([]*KVPair, error) {
	if prefix == "" {
		return nil, ErrKeyEmpty
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*KVPair, 0)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			cp := make([]byte, len(v))
			copy(cp, v)
			result = append(result, &KVPair{Key: k, Value: cp})
		}
	}
	return result, nil
}

func (m *MemoryStore) Delete(k string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, k)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}
