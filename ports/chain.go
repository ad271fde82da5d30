package ports

import (
	"context"

	"github.com/layer-3/gamebridge/core"
)

// Chain is the subset of the blockchain RPC the bridge needs
type Chain interface {
	LatestBlockhash(ctx context.Context) (core.Blockhash, error)
	BlockHeight(ctx context.Context) (uint64, error)
	SendRawTransaction(ctx context.Context, raw []byte) (string, error)
	SignatureStatus(ctx context.Context, signature string) (core.SignatureStatus, error)
}
