package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
)

type usersRepo struct{ db *sql.DB }

// NewPostgres returns a UserStore backed by the users table
func NewPostgres(db *sql.DB) *usersRepo {
	return &usersRepo{db: db}
}

var _ ports.UserStore = (*usersRepo)(nil)

func (r *usersRepo) FindOrCreate(ctx context.Context, wallet string) (*core.User, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, wallet_address, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO NOTHING
	`, uuid.NewString(), wallet, string(core.RoleMember))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return r.GetByWallet(ctx, wallet)
}

func (r *usersRepo) GetByWallet(ctx context.Context, wallet string) (*core.User, error) {
	var (
		u    core.User
		role string
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, wallet_address, role, created_at
		FROM users
		WHERE wallet_address = $1
	`, wallet).Scan(&u.ID, &u.WalletAddress, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrUserNotFound
		}

		return nil, fmt.Errorf("get user: %w", err)
	}

	u.Role = core.Role(role)

	return &u, nil
}

// SetRole assigns role to wallet, creating the user when needed
func (r *usersRepo) SetRole(ctx context.Context, wallet string, role core.Role) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, wallet_address, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (wallet_address) DO UPDATE SET role = EXCLUDED.role
	`, uuid.NewString(), wallet, string(role))
	if err != nil {
		return fmt.Errorf("set role: %w", err)
	}

	return nil
}
