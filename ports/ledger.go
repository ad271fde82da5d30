package ports

import (
	"context"

	"github.com/layer-3/gamebridge/core"
	"github.com/shopspring/decimal"
)

// Ledger reads and writes a player's off-chain currency record
type Ledger interface {
	// ReadPlayerLedger fetches the current record, core.ErrPlayerNotFound if none
	ReadPlayerLedger(ctx context.Context, playerID string) (*core.LedgerRecord, error)

	// Deduct overwrites the record with snapshot's value and newBalance as the
	// balance field, returning the provider's new write lock
	Deduct(ctx context.Context, playerID string, newBalance decimal.Decimal, snapshot *core.LedgerRecord) (string, error)
}
