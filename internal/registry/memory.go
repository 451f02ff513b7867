package registry

import (
	"context"
	"sync"
	"time"

	"github.com/a3tai/subsidy-form-filler/internal/pdf/template"
)

// MemoryStore keeps templates in a map. Entries are copied in and out so
// callers cannot mutate stored state.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]template.TemplateInfo
	now   func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]template.TemplateInfo), now: time.Now}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*template.TemplateInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return &info, nil
}

func (s *MemoryStore) Put(_ context.Context, info *template.TemplateInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prepare(info, s.now)
	s.items[info.ID] = *info
	return nil
}

func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]*template.TemplateInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*template.TemplateInfo, 0, len(s.items))
	for _, info := range s.items {
		if opts.matches(&info) {
			info := info
			out = append(out, &info)
		}
	}
	sortTemplates(out)
	return out, nil
}

func (s *MemoryStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.items[id]
	if !ok {
		return notFound(id)
	}
	info.Active = false
	s.items[id] = info
	return nil
}
