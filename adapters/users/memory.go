package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
)

// MemoryStore keeps identity records in process memory
type MemoryStore struct {
	mu       sync.Mutex
	byWallet map[string]*core.User
}

// NewMemoryStore creates an empty store, admins lists wallets seeded with the admin role
func NewMemoryStore(admins ...string) *MemoryStore {
	s := &MemoryStore{byWallet: make(map[string]*core.User)}
	for _, wallet := range admins {
		s.byWallet[wallet] = &core.User{
			ID:            uuid.NewString(),
			WalletAddress: wallet,
			Role:          core.RoleAdmin,
			CreatedAt:     time.Now(),
		}
	}

	return s
}

var _ ports.UserStore = (*MemoryStore)(nil)

func (s *MemoryStore) FindOrCreate(ctx context.Context, wallet string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.byWallet[wallet]; ok {
		cp := *u
		return &cp, nil
	}

	u := &core.User{
		ID:            uuid.NewString(),
		WalletAddress: wallet,
		Role:          core.RoleMember,
		CreatedAt:     time.Now(),
	}
	s.byWallet[wallet] = u

	cp := *u
	return &cp, nil
}

func (s *MemoryStore) GetByWallet(ctx context.Context, wallet string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byWallet[wallet]
	if !ok {
		return nil, core.ErrUserNotFound
	}

	cp := *u
	return &cp, nil
}
