package store

import "context"

// MemoryKV exposes the repository's memory table as the agent's key/value
// memory capability.
type MemoryKV struct {
	repo Repository
}

// NewMemoryKV wraps repo.
func NewMemoryKV(repo Repository) *MemoryKV {
	return &MemoryKV{repo: repo}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	return m.repo.GetMemory(ctx, key)
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	return m.repo.SetMemory(ctx, key, value)
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	return m.repo.DeleteMemory(ctx, key)
}

func (m *MemoryKV) All(ctx context.Context) (map[string]string, error) {
	return m.repo.AllMemory(ctx)
}
