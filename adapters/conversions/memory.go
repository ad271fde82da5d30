package conversions

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
)

// MemoryStore keeps conversion records in process memory.
// Suitable for tests and single-instance development only: records are lost on restart.
type MemoryStore struct {
	mu          sync.Mutex
	byID        map[string]*core.Conversion
	bySignature map[string]string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:        make(map[string]*core.Conversion),
		bySignature: make(map[string]string),
	}
}

var _ ports.ConversionStore = (*MemoryStore)(nil)

func (s *MemoryStore) Create(ctx context.Context, c *core.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.bySignature[c.Signature]; ok {
		return core.ErrDuplicateConversion
	}

	cp := *c
	s.byID[c.ID] = &cp
	s.bySignature[c.Signature] = c.ID

	return nil
}

func (s *MemoryStore) Update(ctx context.Context, c *core.Conversion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[c.ID]
	if !ok || stored.Revision != c.Revision {
		return core.ErrConversionConflict
	}

	stored.State = c.State
	stored.NewBalance = c.NewBalance
	stored.VersionMarker = c.VersionMarker
	stored.DeductBase = c.DeductBase
	stored.Error = c.Error
	stored.UpdatedAt = c.UpdatedAt
	stored.Revision++
	c.Revision = stored.Revision

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*core.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, core.ErrConversionNotFound
	}

	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListByState(ctx context.Context, states ...core.ConversionState) ([]*core.Conversion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*core.Conversion, 0)
	for _, c := range s.byID {
		if slices.Contains(states, c.State) {
			cp := *c
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}
