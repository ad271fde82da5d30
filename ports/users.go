package ports

import (
	"context"

	"github.com/layer-3/gamebridge/core"
)

// UserStore keeps the identity records linked to wallets
type UserStore interface {
	// FindOrCreate returns the user for wallet, creating a member if none exists
	FindOrCreate(ctx context.Context, wallet string) (*core.User, error)

	// GetByWallet returns core.ErrUserNotFound for unknown wallets
	GetByWallet(ctx context.Context, wallet string) (*core.User, error)
}
