package ports_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// MockStore is an in-memory implementation of CheckpointStore that serializes
// checkpoints, mirroring what durable adapters do.
type MockStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMockStore() *MockStore {
	return &MockStore{
		data: make(map[string][]byte),
	}
}

func (m *MockStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	raw, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[cp.RunID] = raw
	return nil
}

func (m *MockStore) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	raw, ok := m.data[runID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrCheckpointNotFound
	}
	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (m *MockStore) Delete(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, runID)
	return nil
}

func (m *MockStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.data))
	for id := range m.data {
		out = append(out, id)
	}
	return out, nil
}

func TestCheckpointStore_Contract(t *testing.T) {
	ports.RunCheckpointStoreContract(t, NewMockStore())
}
