package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/layer-3/gamebridge/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsers_FindOrCreate(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectExec("INSERT INTO users").
		WithArgs(sqlmock.AnyArg(), "Wallet111", "member").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, wallet_address, role, created_at FROM users").
		WithArgs("Wallet111").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_address", "role", "created_at"}).
			AddRow("u-1", "Wallet111", "admin", created))

	u, err := NewPostgres(db).FindOrCreate(context.Background(), "Wallet111")
	require.NoError(t, err)

	// an existing admin keeps its role
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, core.RoleAdmin, u.Role)
	assert.Equal(t, created, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsers_GetByWallet_NotFound(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, wallet_address, role, created_at FROM users").
		WithArgs("nobody").
		WillReturnRows(sqlmock.NewRows([]string{"id", "wallet_address", "role", "created_at"}))

	_, err = NewPostgres(db).GetByWallet(context.Background(), "nobody")
	assert.True(t, errors.Is(err, core.ErrUserNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsers_SetRole(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO users .* ON CONFLICT \\(wallet_address\\) DO UPDATE SET role").
		WithArgs(sqlmock.AnyArg(), "Admin111", "admin").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewPostgres(db).SetRole(context.Background(), "Admin111", core.RoleAdmin))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMemoryStore_FindOrCreateDefaultsToMember(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore("AdminWallet")
	ctx := context.Background()

	first, err := s.FindOrCreate(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, core.RoleMember, first.Role)

	again, err := s.FindOrCreate(ctx, "W1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	admin, err := s.FindOrCreate(ctx, "AdminWallet")
	require.NoError(t, err)
	assert.Equal(t, core.RoleAdmin, admin.Role)

	_, err = s.GetByWallet(ctx, "W2")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}
