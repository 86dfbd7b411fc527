package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/loykin/camvault/internal/source"
)

// Memory is an in-process Store used by tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	sources  map[int64]source.Source
	settings *Settings
}

func NewMemory() *Memory {
	return &Memory{sources: make(map[int64]source.Source)}
}

func (m *Memory) EnsureSchema(context.Context) error { return nil }
func (m *Memory) Close() error                       { return nil }

func (m *Memory) AddSource(_ context.Context, s *source.Source) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sources {
		if existing.Key() == s.Key() {
			return ErrDuplicate
		}
	}
	m.nextID++
	s.ID = m.nextID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	m.sources[s.ID] = *s
	return nil
}

func (m *Memory) GetSource(_ context.Context, id int64) (source.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return source.Source{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) RemoveSource(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[id]; !ok {
		return ErrNotFound
	}
	delete(m.sources, id)
	return nil
}

func (m *Memory) Sources(context.Context) ([]source.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]source.Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Settings(context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return Settings{Relocation: RelocateMove}, nil
	}
	return *m.settings, nil
}

func (m *Memory) SaveSettings(_ context.Context, s Settings) error {
	policy, err := ParseRelocationPolicy(string(s.Relocation))
	if err != nil {
		return err
	}
	s.Relocation = policy
	m.mu.Lock()
	s.UpdatedAt = time.Now().UTC()
	m.settings = &s
	m.mu.Unlock()
	return nil
}
