package conversions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/layer-3/gamebridge/core"
	"github.com/layer-3/gamebridge/ports"
)

const uniqueViolation = "23505"

const selectColumns = `
	SELECT id, signature, player_id, wallet_address, amount, base_units,
	       blockhash, last_valid_block_height, state, new_balance,
	       version_marker, deduct_base, error, created_at, updated_at, revision
	FROM conversions
`

type conversionsRepo struct{ db *sql.DB }

// NewPostgres returns a ConversionStore backed by the conversions table
func NewPostgres(db *sql.DB) *conversionsRepo {
	return &conversionsRepo{db: db}
}

var _ ports.ConversionStore = (*conversionsRepo)(nil)

func (r *conversionsRepo) Create(ctx context.Context, c *core.Conversion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversions (
			id, signature, player_id, wallet_address, amount, base_units,
			blockhash, last_valid_block_height, state, new_balance,
			version_marker, deduct_base, error, created_at, updated_at, revision
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`,
		c.ID, c.Signature, c.PlayerID, c.WalletAddress, c.Amount.String(),
		strconv.FormatUint(c.BaseUnits, 10), c.Blockhash, int64(c.LastValidBlockHeight),
		string(c.State), c.NewBalance, c.VersionMarker, c.DeductBase, c.Error,
		c.CreatedAt, c.UpdatedAt, c.Revision,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrDuplicateConversion
		}

		return fmt.Errorf("insert conversion: %w", err)
	}

	return nil
}

func (r *conversionsRepo) Update(ctx context.Context, c *core.Conversion) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversions
		SET state = $3, new_balance = $4, version_marker = $5, deduct_base = $6,
		    error = $7, updated_at = $8, revision = revision + 1
		WHERE id = $1 AND revision = $2
	`, c.ID, c.Revision, string(c.State), c.NewBalance, c.VersionMarker, c.DeductBase, c.Error, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update conversion: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return core.ErrConversionConflict
	}
	c.Revision++

	return nil
}

func (r *conversionsRepo) Get(ctx context.Context, id string) (*core.Conversion, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`WHERE id = $1`, id)

	c, err := scanConversion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrConversionNotFound
		}

		return nil, fmt.Errorf("get conversion: %w", err)
	}

	return c, nil
}

func (r *conversionsRepo) ListByState(ctx context.Context, states ...core.ConversionState) ([]*core.Conversion, error) {
	if len(states) == 0 {
		return []*core.Conversion{}, nil
	}

	placeholders := make([]string, len(states))
	args := make([]any, len(states))
	for i, s := range states {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = string(s)
	}

	query := selectColumns + `WHERE state IN (` + strings.Join(placeholders, ", ") + `) ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	out := make([]*core.Conversion, 0)
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversions: %w", err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(s scanner) (*core.Conversion, error) {
	var (
		c         core.Conversion
		baseUnits string
		lastValid int64
		state     string
	)

	err := s.Scan(
		&c.ID, &c.Signature, &c.PlayerID, &c.WalletAddress, &c.Amount, &baseUnits,
		&c.Blockhash, &lastValid, &state, &c.NewBalance,
		&c.VersionMarker, &c.DeductBase, &c.Error, &c.CreatedAt, &c.UpdatedAt, &c.Revision,
	)
	if err != nil {
		return nil, err
	}

	c.BaseUnits, err = strconv.ParseUint(baseUnits, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse base units %q: %w", baseUnits, err)
	}

	c.LastValidBlockHeight = uint64(lastValid)
	c.State = core.ConversionState(state)

	return &c, nil
}
