package secrets

import (
	"sync"

	"sealchat/internal/domain"
)

// Memory is an unsealed, in-process Secret Store for tests.
type Memory struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Save(tag string, raw []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[tag] = append([]byte(nil), raw...)
	return nil
}

func (m *Memory) Load(tag string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[tag]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

func (m *Memory) Delete(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, tag)
	return nil
}

var _ domain.SecretStore = (*Memory)(nil)
